package ytdlp

import (
	"context"
	"strconv"
	"time"

	goytdlp "github.com/lrstanley/go-ytdlp"
)

const progressInterval = 500 * time.Millisecond

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, inv Invocation, onProgress func(Progress)) (string, error) {
	cmd := buildCommand(inv)
	if onProgress != nil && !inv.Probe {
		cmd.ProgressFunc(progressInterval, func(update goytdlp.ProgressUpdate) {
			onProgress(Progress{
				Status:          string(update.Status),
				DownloadedBytes: int64(update.DownloadedBytes),
				TotalBytes:      int64(update.TotalBytes),
				FragmentIndex:   update.FragmentIndex,
				FragmentCount:   update.FragmentCount,
				Filename:        update.Filename,
				ETA:             update.ETA(),
			})
		})
	}

	res, err := cmd.Run(ctx, inv.URL)
	if err != nil {
		engineErr := &EngineError{Err: err}
		if res != nil {
			engineErr.ExitCode = res.ExitCode
			engineErr.Diagnostic = lastErrorLine(res.Stderr)
		}
		return "", engineErr
	}
	if res == nil {
		return "", nil
	}
	return res.Stdout, nil
}

// buildCommand translates an invocation into go-ytdlp builder calls.
func buildCommand(inv Invocation) *goytdlp.Command {
	cmd := goytdlp.New().
		SetExecutable(inv.Binary).
		NoPlaylist().
		NoWarnings()

	s := inv.Settings
	if inv.CookieFile != "" {
		cmd.Cookies(inv.CookieFile)
	}
	if s.UserAgent != "" {
		cmd.AddHeaders("User-Agent:" + s.UserAgent)
	}
	if s.Retries > 0 {
		cmd.Retries(strconv.Itoa(s.Retries))
	}
	if s.SleepRequests > 0 {
		cmd.SleepRequests(s.SleepRequests)
	}

	if inv.Probe {
		return cmd.SkipDownload().DumpSingleJSON()
	}

	cmd.Format(inv.Format).
		Output(inv.Output).
		ForceOverwrites()
	if s.FragmentConcurrency > 0 {
		cmd.ConcurrentFragments(s.FragmentConcurrency)
	}
	if s.HTTPChunkSize != "" {
		cmd.HTTPChunkSize(s.HTTPChunkSize)
	}
	if s.FFmpegLocation != "" {
		cmd.FFmpegLocation(s.FFmpegLocation)
	}
	if inv.ExtractAudio {
		cmd.ExtractAudio()
		if inv.AudioFormat != "" {
			cmd.AudioFormat(inv.AudioFormat)
		}
	} else if inv.MergeContainer != "" {
		// Remuxing keeps single-stream fallbacks in the same container as merges.
		cmd.MergeOutputFormat(inv.MergeContainer).RemuxVideo(inv.MergeContainer)
	}
	return cmd
}

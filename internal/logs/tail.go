package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CurrentName is the pointer the daemon keeps at its newest log file.
const CurrentName = "tubefront.log"

const (
	scanBufferSize   = 64 * 1024
	maxLineSize      = 1024 * 1024
	defaultPollEvery = 250 * time.Millisecond
)

// Filter reports whether a line should be shown. A nil Filter keeps
// everything.
type Filter func(line string) bool

// CurrentPath returns the pointer path inside logDir.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, CurrentName)
}

// JobFilter keeps lines logged on behalf of jobID.
func JobFilter(jobID string) Filter {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil
	}
	jsonNeedle := fmt.Sprintf("%q:%q", "job_id", jobID)
	consoleNeedle := "job_id=" + jobID
	return func(line string) bool {
		return strings.Contains(line, jsonNeedle) || strings.Contains(line, consoleNeedle)
	}
}

// Last returns up to n trailing lines of path that pass keep, along with the
// offset just past the end of the file. A missing file yields no lines.
func Last(path string, n int, keep Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if n <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, n)
	count, next := 0, 0
	end, err := scanLines(file, keep, func(line string) {
		ring[next] = line
		next = (next + 1) % n
		count = min(count+1, n)
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, count)
	start := 0
	if count == n {
		start = next
	}
	for i := range count {
		lines[i] = ring[(start+i)%n]
	}
	return lines, end, nil
}

// FollowOptions tunes Follow.
type FollowOptions struct {
	Offset int64
	Poll   time.Duration
	Keep   Filter
}

// Follow streams lines appended to path after opts.Offset until ctx ends.
// It returns nil on cancellation.
func Follow(ctx context.Context, path string, opts FollowOptions, emit func(string)) error {
	poll := opts.Poll
	if poll <= 0 {
		poll = defaultPollEvery
	}
	offset := max(opts.Offset, 0)
	current, _ := os.Stat(path)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		info, err := os.Stat(path)
		switch {
		case err == nil:
			if current != nil && !os.SameFile(current, info) {
				// The daemon restarted and repointed the log.
				offset = 0
			}
			current = info
			if info.Size() < offset {
				offset = 0
			}
			if info.Size() > offset {
				offset, err = readFrom(path, offset, opts.Keep, emit)
				if err != nil {
					return err
				}
			}
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("stat log file: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, keep Filter, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return offset, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	consumed := offset
	reader := bufio.NewReaderSize(file, scanBufferSize)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// Leave partial lines for the next poll.
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if keep == nil || keep(line) {
			emit(line)
		}
	}
}

func scanLines(file *os.File, keep Filter, fn func(string)) (int64, error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, scanBufferSize), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if keep == nil || keep(line) {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	return end, nil
}

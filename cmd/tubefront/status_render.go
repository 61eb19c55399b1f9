package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"tubefront/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
	progressBarWidth = 30
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

// stageKind maps a progress stage onto a status color.
func stageKind(stage string) statusKind {
	switch stage {
	case "finished":
		return statusOK
	case "failed":
		return statusError
	default:
		return statusInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// renderProgress draws one snapshot as a labelled bar. Unknown percentages
// render without a bar.
func renderProgress(p *api.Progress, colorize bool) []string {
	lines := []string{renderStatusLine("Job", stageKind(p.Stage), p.JobID, colorize)}
	detail := p.Stage
	if p.Percent >= 0 {
		filled := int(p.Percent / 100 * progressBarWidth)
		filled = max(0, min(progressBarWidth, filled))
		bar := strings.Repeat("#", filled) + strings.Repeat(".", progressBarWidth-filled)
		detail = fmt.Sprintf("%s [%s] %5.1f%%", p.Stage, bar, p.Percent)
	}
	lines = append(lines, renderStatusLine("Stage", stageKind(p.Stage), detail, colorize))
	if p.TotalBytes > 0 {
		lines = append(lines, renderStatusLine("Bytes", statusInfo, fmt.Sprintf("%s / %s", formatBytes(p.DownloadedBytes), formatBytes(p.TotalBytes)), colorize))
	} else if p.DownloadedBytes > 0 {
		lines = append(lines, renderStatusLine("Bytes", statusInfo, formatBytes(p.DownloadedBytes), colorize))
	}
	if p.Filename != "" {
		lines = append(lines, renderStatusLine("File", statusInfo, p.Filename, colorize))
	}
	if p.Message != "" {
		lines = append(lines, renderStatusLine("Message", stageKind(p.Stage), p.Message, colorize))
	}
	if p.UpdatedAt != "" {
		lines = append(lines, renderStatusLine("Updated", statusInfo, p.UpdatedAt, colorize))
	}
	return lines
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

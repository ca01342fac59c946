package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"capstan/internal/statusdoc"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// stepBadge renders a pipeline step status for table cells.
func stepBadge(step statusdoc.Step, colorize bool) string {
	label := string(step.Status)
	if label == "" {
		label = "-"
	}
	if !colorize {
		return label
	}
	switch step.Status {
	case statusdoc.StepCompleted:
		return ansiGreen + label + ansiReset
	case statusdoc.StepRunning:
		return ansiBlue + label + ansiReset
	case statusdoc.StepFailed:
		return ansiRed + label + ansiReset
	case statusdoc.StepSkipped:
		return ansiYellow + label + ansiReset
	default:
		return label
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(value string, limit int) string {
	if limit <= 1 || len(value) <= limit {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

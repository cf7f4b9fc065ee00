package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// formatStatus colors a job status when writing to a terminal.
func formatStatus(status string, colored bool) string {
	if !colored {
		return status
	}
	switch status {
	case "COMPLETED":
		return text.FgGreen.Sprint(status)
	case "FAILED":
		return text.FgRed.Sprint(status)
	case "RUNNING":
		return text.FgCyan.Sprint(status)
	default:
		return status
	}
}

func formatProgress(ratio float64) string {
	return fmt.Sprintf("%d%%", int(ratio*100))
}

func formatSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// truncate shortens s to max runes; input names can carry multi-byte text.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

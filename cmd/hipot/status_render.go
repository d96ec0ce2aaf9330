package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"hipot/internal/batch"
	"hipot/internal/ipc"
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
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
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

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// batchState classifies the orchestrator state for the status line.
func batchState(s batch.Snapshot) (statusKind, string) {
	switch {
	case s.Stopping:
		return statusError, "emergency stop in progress"
	case s.Running:
		if s.CurrentCavity > 0 && s.Stage != "" {
			return statusInfo, fmt.Sprintf("running cavity %d (%s)", s.CurrentCavity, s.Stage)
		}
		return statusInfo, "running"
	case s.Fault:
		return statusError, "fault; reset required"
	case s.StartLocked:
		return statusWarn, "start locked; reset to continue"
	default:
		return statusOK, "ready"
	}
}

func renderStatus(status *ipc.StatusResponse, colorize bool) []string {
	var lines []string
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	daemonKind, daemonMsg := statusError, "not running"
	if status.Running {
		daemonKind, daemonMsg = statusOK, fmt.Sprintf("running (pid %d)", status.PID)
	}
	lines = append(lines, renderStatusLine("Daemon", daemonKind, daemonMsg, colorize))
	hotplugKind := statusWarn
	if status.Hotplug {
		hotplugKind = statusOK
	}
	lines = append(lines, renderStatusLine("Hotplug monitor", hotplugKind, yesNo(status.Hotplug), colorize))
	if status.ConfigPath != "" {
		lines = append(lines, renderStatusLine("Config", statusInfo, status.ConfigPath, colorize))
	}
	if status.HistoryPath != "" {
		lines = append(lines, renderStatusLine("History", statusInfo, status.HistoryPath, colorize))
	}

	snap := status.Batch
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Batch", colorize)...)
	kind, msg := batchState(snap)
	lines = append(lines, renderStatusLine("State", kind, msg, colorize))
	if snap.RunID != "" {
		lines = append(lines, renderStatusLine("Run", statusInfo, snap.RunID, colorize))
	}
	lines = append(lines, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d%%", snap.Progress), colorize))
	enabled, lasered := 0, 0
	for _, s := range snap.Settings {
		if s.RunEnabled {
			enabled++
			if s.LaserEnabled {
				lasered++
			}
		}
	}
	lines = append(lines, renderStatusLine("Cavities enabled", statusInfo,
		fmt.Sprintf("%d of %d (%d marked on pass)", enabled, len(snap.Settings), lasered), colorize))
	if snap.PendingSettings {
		lines = append(lines, renderStatusLine("Settings", statusWarn, "change pending until the next start", colorize))
	}
	if snap.ReportOpen {
		lines = append(lines, renderStatusLine("Report", statusInfo, "open; `hipot report` to view", colorize))
	}

	if len(snap.Warnings) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Warnings", colorize)...)
		for _, w := range snap.Warnings {
			lines = append(lines, renderStatusLine("Warning", statusWarn, w, colorize))
		}
	}
	return lines
}

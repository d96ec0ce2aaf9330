package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// RetentionTarget names a directory of per-start log files to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	// Exclude lists files that must survive, typically the log the current
	// daemon is writing. The hipot.log pointer target is always kept.
	Exclude []string
}

type logFile struct {
	path    string
	modTime time.Time
}

// CleanupOldLogs removes files matching targets that are older than
// retentionDays and returns how many were deleted. Zero days disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	removed := 0
	for _, target := range targets {
		for _, file := range expiredLogs(target, cutoff) {
			if err := os.Remove(file.path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", file.path),
					Error(err),
					String(FieldErrorHint, "check file permissions and paths.log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Info("log pruned",
					String("path", file.path),
					String(FieldEventType, "log_pruned"),
				)
			}
		}
	}
	return removed
}

// expiredLogs lists the files of target last written before cutoff, oldest
// first.
func expiredLogs(target RetentionTarget, cutoff time.Time) []logFile {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	keep := map[string]bool{}
	for _, path := range target.Exclude {
		if abs := absPath(path); abs != "" {
			keep[abs] = true
		}
	}
	if current, err := filepath.EvalSymlinks(filepath.Join(dir, "hipot.log")); err == nil {
		keep[absPath(current)] = true
	}

	pattern := strings.TrimSpace(target.Pattern)
	var out []logFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path := absPath(filepath.Join(dir, entry.Name()))
		if keep[path] {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, logFile{path: path, modTime: info.ModTime()})
	}
	slices.SortFunc(out, func(a, b logFile) int { return a.modTime.Compare(b.modTime) })
	return out
}

func absPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

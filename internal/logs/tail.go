package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultPoll     = 250 * time.Millisecond
	maxLineSize     = 1024 * 1024
	initialLineSize = 64 * 1024
)

// Options controls Follow.
type Options struct {
	// Lines is how many trailing lines to emit first. Zero starts at the end.
	Lines int
	// Follow keeps polling for new lines until ctx is done.
	Follow bool
	// Poll is the follow interval. Zero uses 250ms.
	Poll time.Duration
}

// Last returns up to limit trailing lines of path and the offset just past
// them. A missing file yields no lines.
func Last(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	offset, err := scanLines(file, func(line string) {
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := range count {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, nil
}

// From returns the complete lines written to path after offset. An offset
// past the end of the file, which happens after truncation, restarts at zero.
func From(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	consumed, err := scanLines(file, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, 0, err
	}
	return lines, offset + consumed, nil
}

// scanLines feeds every newline-terminated line to fn and returns the bytes
// consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, initialLineSize)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			if len(line) > maxLineSize {
				line = line[:maxLineSize]
			}
			fn(trimNewline(line))
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}

func trimNewline(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// Follow emits the tail of the log behind pointer and, when opts.Follow is
// set, every line appended afterwards. It returns nil when ctx ends.
func Follow(ctx context.Context, pointer string, opts Options, emit func(string) error) error {
	current := resolve(pointer)
	lines, offset, err := Last(current, opts.Lines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if err := emit(line); err != nil {
			return err
		}
	}
	if !opts.Follow {
		return nil
	}

	poll := opts.Poll
	if poll <= 0 {
		poll = defaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if next := resolve(pointer); next != current {
			if current != "" {
				// Drain the old file before switching to the new daemon log.
				rest, _, err := From(current, offset)
				if err == nil {
					for _, line := range rest {
						if err := emit(line); err != nil {
							return err
						}
					}
				}
			}
			current, offset = next, 0
		}

		lines, next, err := From(current, offset)
		if err != nil {
			return err
		}
		offset = next
		for _, line := range lines {
			if err := emit(line); err != nil {
				return err
			}
		}
	}
}

// resolve follows the hipot.log pointer to the current per-start file.
func resolve(pointer string) string {
	target, err := filepath.EvalSymlinks(pointer)
	if err != nil {
		return pointer
	}
	return target
}

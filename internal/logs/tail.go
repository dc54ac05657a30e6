package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// maxLine bounds a single log line.
const maxLine = 1 << 20

// DefaultPoll is the Follow polling interval.
const DefaultPoll = 250 * time.Millisecond

// Match selects lines. A nil Match accepts every line.
type Match func(line string) bool

// Containing matches lines that contain every non-empty needle.
func Containing(needles ...string) Match {
	var active []string
	for _, n := range needles {
		if n = strings.TrimSpace(n); n != "" {
			active = append(active, n)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(line string) bool {
		for _, n := range active {
			if !strings.Contains(line, n) {
				return false
			}
		}
		return true
	}
}

// Last returns up to limit matching lines from the end of path and the offset
// just past them. A missing file yields no lines and offset 0.
func Last(path string, limit int, match Match) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if info, err := file.Stat(); err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	} else if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}

	var ring []string
	next := 0
	offset, err := scanLines(file, func(line string) {
		if limit <= 0 || (match != nil && !match(line)) {
			return
		}
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[next] = line
		next = (next + 1) % limit
	})
	if err != nil {
		return nil, 0, err
	}
	lines := append(ring[next:len(ring):len(ring)], ring[:next]...)
	return lines, offset, nil
}

// Follow calls emit for every matching line appended after offset until ctx
// is done. It returns nil on cancellation.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, match Match, emit func(string)) error {
	if poll <= 0 {
		poll = DefaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, match, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, match Match, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		// Truncated or replaced.
		offset = 0
	}
	if info.Size() == offset {
		return offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scanLines(file, func(line string) {
		if match == nil || match(line) {
			emit(line)
		}
	})
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scanLines feeds complete lines to fn and reports the bytes consumed. A
// trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if len(line) > maxLine {
			line = line[:maxLine]
		}
		fn(line)
	}
}

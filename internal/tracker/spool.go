package tracker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const maxSpoolLinesPerDrain = 10_000

// DrainSpool reads new entries from the foreground-event spool since the last
// processed byte offset and feeds them to the tracker strictly in file order.
//
// Spool format (one event per line, appended by the platform hook):
//
//	<unix_nano>,<target>
//
// where <target> is an application package name or normalized domain, and the
// literal "-" marks idle (screen off, browser closed).
//
// Example:
//
//	1709012345678901234,com.example.game
//	1709012399000000000,-
//
// The offset is advanced atomically only past events the tracker handled
// successfully. If a commit fails mid-batch, the offset stops before the
// failing event and the next drain retries it: usage accounting is
// at-most-once per event and nothing is dropped.
//
// Returns nil (no error) when the spool file does not yet exist.
func DrainSpool(tr *Tracker, spoolPath, offsetPath string) error {
	if _, err := os.Stat(spoolPath); os.IsNotExist(err) {
		return nil
	}

	offset, err := readSpoolOffset(offsetPath)
	if err != nil {
		return fmt.Errorf("spool: read offset: %w", err)
	}

	f, err := os.Open(spoolPath)
	if err != nil {
		return fmt.Errorf("spool: open: %w", err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			// Offset may be stale after spool rotation. Reset to 0.
			log.Printf("spool: seek failed (offset=%d), resetting: %v", offset, err)
			offset = 0
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("spool: seek reset failed: %w", err)
			}
		}
	}

	consumed := offset
	lines := 0
	var drainErr error

	scanner := bufio.NewScanner(f)
	for scanner.Scan() && lines < maxSpoolLinesPerDrain {
		line := scanner.Text()
		lineLen := int64(len(line)) + 1 // trailing newline
		lines++

		if line == "" {
			consumed += lineLen
			continue
		}

		ts, target, ok := parseSpoolLine(line)
		if !ok {
			log.Printf("spool: skipping malformed line: %q", line)
			consumed += lineLen
			continue
		}

		if target == IdleTarget {
			if err := tr.OnIdle(ts); err != nil {
				drainErr = err
				break
			}
		} else {
			decision, err := tr.OnForegroundChange(target, ts)
			if err != nil {
				if errors.Is(err, ErrInvalidTarget) {
					// Malformed target: consume the line, never store it.
					log.Printf("spool: rejecting event for invalid target %q", target)
					consumed += lineLen
					continue
				}
				drainErr = err
				break
			}
			if decision.Blocked() {
				log.Printf("block %s (%s)", target, decision.Reason)
			}
		}

		consumed += lineLen
	}
	if err := scanner.Err(); err != nil && drainErr == nil {
		drainErr = fmt.Errorf("spool: scan: %w", err)
	}

	if consumed != offset {
		if err := writeSpoolOffsetAtomic(offsetPath, consumed); err != nil {
			return err
		}
	}
	return drainErr
}

// parseSpoolLine parses a line of the form "<unix_nano>,<target>".
// Returns (zero, "", false) on any parse error.
func parseSpoolLine(line string) (time.Time, string, bool) {
	idx := strings.IndexByte(line, ',')
	if idx <= 0 || idx >= len(line)-1 {
		return time.Time{}, "", false
	}

	tsStr := line[:idx]
	target := line[idx+1:]

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, "", false
	}
	if target == "" {
		return time.Time{}, "", false
	}

	return time.Unix(0, ts), target, true
}

// readSpoolOffset reads the byte offset from the offset tracking file.
// Returns 0 if the file does not exist.
func readSpoolOffset(offsetPath string) (int64, error) {
	data, err := os.ReadFile(offsetPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	offset, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse offset %q: %w", s, err)
	}
	return offset, nil
}

// writeSpoolOffsetAtomic writes newOffset via a temp-file rename, so a crash
// mid-write can never corrupt the offset.
func writeSpoolOffsetAtomic(offsetPath string, newOffset int64) error {
	dir := filepath.Dir(offsetPath)
	tmpPath := filepath.Join(dir, ".offset.tmp")

	if err := os.WriteFile(tmpPath, []byte(strconv.FormatInt(newOffset, 10)), 0600); err != nil {
		return fmt.Errorf("write temp offset file: %w", err)
	}
	if err := os.Rename(tmpPath, offsetPath); err != nil {
		return fmt.Errorf("rename offset file: %w", err)
	}
	return nil
}

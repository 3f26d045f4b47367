// Command usagectl-hook reports a foreground change to the tracking daemon.
//
// Platform integrations (browser extensions, window-manager hooks, app
// launchers) invoke it whenever the foreground target changes:
//
//	usagectl-hook news.example   # news.example took the foreground
//	usagectl-hook -               # the foreground went away (idle)
//
// It appends one line to ~/.usagectl/events.log and exits. The daemon
// notices the append via filesystem notification and drains it within
// moments; if the daemon is down, events queue in the file and are
// replayed in order on the next start.
//
// The hook must NOT import any internal usagectl packages. It is a
// standalone binary deployed separately from the main CLI, and staying
// dependency-free keeps its cost per invocation negligible.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func main() {
	if len(os.Args) != 2 || os.Args[1] == "" {
		fmt.Fprintln(os.Stderr, "usage: usagectl-hook <target>")
		fmt.Fprintln(os.Stderr, "       usagectl-hook -     (foreground went away)")
		os.Exit(2)
	}

	if err := appendEvent(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "usagectl-hook: %v\n", err)
		os.Exit(1)
	}
}

// appendEvent appends a "<unix_nano>,<target>" line to the event spool.
func appendEvent(target string) error {
	dir := os.Getenv("USAGECTL_DATA_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(home, ".usagectl")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// O_APPEND gives atomic single-write semantics on POSIX filesystems, so
	// concurrent hooks never interleave within a line.
	f, err := os.OpenFile(filepath.Join(dir, "events.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%d,%s\n", time.Now().UnixNano(), target)
	return err
}

// Package output provides terminal output utilities for usagectl.
//
// Table rendering uses ASCII layout with ANSI color codes when stdout is a
// terminal. The spinner is safe for concurrent use.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/usagecontrol/usagectl/internal/store"
)

// ANSI color codes for enforcement state display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderRestrictionTable renders the configured restrictions with today's
// usage alongside. usedToday maps target to the accumulated duration for the
// current day; targets without an entry render as 0s.
func RenderRestrictionTable(restrictions []*store.Restriction, usedToday map[string]time.Duration) string {
	if len(restrictions) == 0 {
		return "No restrictions configured.\n"
	}

	sorted := make([]*store.Restriction, len(restrictions))
	copy(sorted, restrictions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Target < sorted[j].Target
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-24s %-9s %-10s %-10s %-6s %s\n",
		"Target", "Mode", "Limit", "Used", "Level", "Modified"))
	sb.WriteString(strings.Repeat("─", 76))
	sb.WriteString("\n")

	for _, r := range sorted {
		mode, limit := describeRestriction(r)
		used := usedToday[r.Target]

		usedStr := FormatDuration(used)
		if r.DailyLimit > 0 && used >= r.DailyLimit {
			usedStr = colorize(colorRed, usedStr)
		}

		sb.WriteString(fmt.Sprintf("%-24s %-9s %-10s %-10s %-6d %s\n",
			truncate(r.Target, 24),
			mode,
			limit,
			usedStr,
			r.Level,
			formatRelativeTime(r.LastModified)))
	}

	return sb.String()
}

// describeRestriction returns the mode and limit columns for a restriction.
func describeRestriction(r *store.Restriction) (mode, limit string) {
	switch {
	case r.IsBlocked:
		return colorize(colorRed, "block"), "—"
	case r.DailyLimit > 0:
		return colorize(colorYellow, "limit"), FormatDuration(r.DailyLimit)
	default:
		return colorize(colorGray, "none"), "—"
	}
}

// RenderUsageTable renders usage totals for one day, sorted by duration
// descending. restrictions supplies the limit column; targets without a
// restriction show "—".
func RenderUsageTable(day string, totals []*store.UsageTotal, restrictions map[string]*store.Restriction) string {
	if len(totals) == 0 {
		return fmt.Sprintf("No usage recorded for %s.\n", day)
	}

	sorted := make([]*store.UsageTotal, len(totals))
	copy(sorted, totals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Duration != sorted[j].Duration {
			return sorted[i].Duration > sorted[j].Duration
		}
		return sorted[i].Target < sorted[j].Target
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Usage for %s\n\n", day))
	sb.WriteString(fmt.Sprintf("%-24s %-10s %-10s %s\n",
		"Target", "Used", "Limit", "Status"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")

	var total time.Duration
	for _, u := range sorted {
		total += u.Duration

		limit := "—"
		status := colorize(colorGray, "untracked")
		if r, ok := restrictions[u.Target]; ok {
			switch {
			case r.IsBlocked:
				limit = "—"
				status = colorize(colorRed, "blocked")
			case r.DailyLimit > 0:
				limit = FormatDuration(r.DailyLimit)
				if u.Duration >= r.DailyLimit {
					status = colorize(colorRed, "over limit")
				} else {
					status = colorize(colorGreen, "ok")
				}
			default:
				status = colorize(colorGreen, "ok")
			}
		}

		sb.WriteString(fmt.Sprintf("%-24s %-10s %-10s %s\n",
			truncate(u.Target, 24),
			FormatDuration(u.Duration),
			limit,
			status))
	}

	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%-24s %s\n", "Total", FormatDuration(total)))

	return sb.String()
}

// RenderOverrideTable renders today's override grants, newest first.
func RenderOverrideTable(grants []*store.OverrideGrant, now time.Time) string {
	if len(grants) == 0 {
		return "No overrides granted today.\n"
	}

	sorted := make([]*store.OverrideGrant, len(grants))
	copy(sorted, grants)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].GrantedAt.After(sorted[j].GrantedAt)
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-24s %-13s %-13s %s\n",
		"Target", "Granted", "Expires", "Status"))
	sb.WriteString(strings.Repeat("─", 64))
	sb.WriteString("\n")

	for _, g := range sorted {
		status := colorize(colorGray, "expired")
		expires := formatRelativeTime(g.ExpiresAt)
		if g.ExpiresAt.After(now) {
			status = colorize(colorGreen, "active")
			expires = "in " + FormatDuration(g.ExpiresAt.Sub(now))
		}

		sb.WriteString(fmt.Sprintf("%-24s %-13s %-13s %s\n",
			truncate(g.Target, 24),
			formatRelativeTime(g.GrantedAt),
			expires,
			status))
	}

	return sb.String()
}

// FormatDuration renders a duration compactly: "0s", "45s", "12m", "1h 23m".
// Sub-minute precision is dropped once the duration reaches a minute.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case diff < 30*24*time.Hour:
		weeks := int(diff.Hours() / 24 / 7)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		months := int(diff.Hours() / 24 / 30)
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

package syncer

import "sort"

// Merge combines a local and a remote snapshot under the per-group conflict
// laws. It is a pure function: neither input is mutated.
//
// Laws, applied independently per group:
//   - Restrictions: last-writer-wins per target by the record's own
//     lastModified; on an exact tie the remote record wins. The tie-break is
//     arbitrary but deterministic, so two devices merging each other's
//     snapshots converge instead of oscillating.
//   - DailyUsage: per (day, target), max(local, remote). Never summed, since
//     both sides may have observed overlapping portions of the same
//     device-day and summing would double-count. Never lowered.
//   - Settings: whole-object last-writer-wins, remote wins ties.
//   - Sessions: set union keyed by (target, startTime, endTime).
//
// Max and union are commutative and idempotent; last-writer-wins is too when
// timestamps differ, and the remote-wins tie-break settles the rest.
// Merging a snapshot with itself returns an equal snapshot.
func Merge(local, remote *Snapshot) *Snapshot {
	if remote == nil {
		out := *local
		return &out
	}

	merged := &Snapshot{
		DeviceID:     local.DeviceID,
		LastModified: maxInt64(local.LastModified, remote.LastModified),
		Restrictions: mergeRestrictions(local.Restrictions, remote.Restrictions),
		DailyUsage:   mergeUsage(local.DailyUsage, remote.DailyUsage),
		Settings:     mergeSettings(local.Settings, remote.Settings),
		Sessions:     mergeSessions(local.Sessions, remote.Sessions),
	}
	return merged
}

func mergeRestrictions(local, remote []Restriction) []Restriction {
	byTarget := make(map[string]Restriction, len(local)+len(remote))
	for _, r := range local {
		byTarget[r.Target] = r
	}
	for _, r := range remote {
		existing, ok := byTarget[r.Target]
		// Remote wins ties: >= not >.
		if !ok || r.LastModified >= existing.LastModified {
			byTarget[r.Target] = r
		}
	}

	out := make([]Restriction, 0, len(byTarget))
	for _, r := range byTarget {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

func mergeUsage(local, remote map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(local)+len(remote))
	for k, v := range local {
		out[k] = v
	}
	for k, v := range remote {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

func mergeSettings(local, remote Settings) Settings {
	if remote.LastModified >= local.LastModified {
		return remote
	}
	return local
}

type sessionKey struct {
	target     string
	start, end int64
}

func mergeSessions(local, remote []Session) []Session {
	seen := make(map[sessionKey]Session, len(local)+len(remote))
	for _, s := range local {
		seen[sessionKey{s.Target, s.StartTime, s.EndTime}] = s
	}
	for _, s := range remote {
		k := sessionKey{s.Target, s.StartTime, s.EndTime}
		if _, ok := seen[k]; !ok {
			seen[k] = s
		}
	}

	out := make([]Session, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].EndTime < out[j].EndTime
	})
	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BranchPrefix marks branches that hold sanctuary snapshots
const BranchPrefix = "auto-"

// PracticePrefix is the only branch family humans may commit to inside the
// browse workspace
const PracticePrefix = "practice-"

// timestampLayout sorts lexicographically in chronological order.
// Milliseconds are appended separately because Go layouts only allow
// fractional seconds after a dot or comma.
const timestampLayout = "20060102-1504-05"

// Snapshot identifies one captured state of the project.
// It has no storage of its own: it is a branch in the sanctuary store.
type Snapshot struct {
	Branch    string
	Timestamp time.Time
}

// BranchName generates the snapshot branch name for a timestamp
// Format: auto-yyyyMMdd-HHmm-ss-SSS
func BranchName(timestamp time.Time) string {
	return fmt.Sprintf("%s%s-%03d",
		BranchPrefix,
		timestamp.Format(timestampLayout),
		timestamp.Nanosecond()/int(time.Millisecond),
	)
}

// UniqueBranchName returns BranchName(timestamp), or the same name with a
// zero-padded -NNN suffix when exists reports a collision. The suffixed
// names sort after the bare one, in collision order, and before the next
// millisecond.
func UniqueBranchName(timestamp time.Time, exists func(string) bool) string {
	base := BranchName(timestamp)
	name := base
	for n := 1; exists(name); n++ {
		name = fmt.Sprintf("%s-%03d", base, n)
	}
	return name
}

// IsSnapshotBranch reports whether branch carries the snapshot prefix
func IsSnapshotBranch(branch string) bool {
	return strings.HasPrefix(branch, BranchPrefix)
}

// ParseSnapshot recovers the capture time from a snapshot branch name
func ParseSnapshot(branch string) (Snapshot, error) {
	if !IsSnapshotBranch(branch) {
		return Snapshot{}, fmt.Errorf("not a snapshot branch: %s", branch)
	}

	// auto-20060102-1504-05-000[-NNN]
	rest := strings.TrimPrefix(branch, BranchPrefix)
	if len(rest) < len(timestampLayout)+4 {
		return Snapshot{}, fmt.Errorf("invalid snapshot branch format: %s", branch)
	}

	stamp := rest[:len(timestampLayout)+4]
	seconds, millis := stamp[:len(timestampLayout)], stamp[len(timestampLayout)+1:]
	ts, err := time.ParseInLocation(timestampLayout, seconds, time.Local)
	if err != nil {
		return Snapshot{}, fmt.Errorf("invalid timestamp format: %w", err)
	}
	ms, err := strconv.Atoi(millis)
	if err != nil {
		return Snapshot{}, fmt.Errorf("invalid timestamp format: %w", err)
	}

	return Snapshot{
		Branch:    branch,
		Timestamp: ts.Add(time.Duration(ms) * time.Millisecond),
	}, nil
}

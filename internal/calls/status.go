package calls

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusConnected  Status = "connected"
	StatusEnded      Status = "ended"
	StatusCompleted  Status = "completed"
)

// statusRanks is the partial order queued < {in_progress, connected} < ended < completed.
// in_progress and connected share a rank; either may follow the other.
var statusRanks = []struct {
	status Status
	rank   int
}{
	{StatusQueued, 0},
	{StatusInProgress, 1},
	{StatusConnected, 1},
	{StatusEnded, 2},
	{StatusCompleted, 3},
}

// Rank returns the status position in the lifecycle order, or -1 when the
// status is unknown. Unknown statuses never block a transition.
func (s Status) Rank() int {
	for _, r := range statusRanks {
		if r.status == s {
			return r.rank
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.Rank() >= 0 }

// Advance returns the status a record holds after next is applied to cur.
// Backward moves are dropped.
func Advance(cur, next Status) Status {
	if next.Rank() < cur.Rank() {
		return cur
	}
	return next
}

// statusRankSQL renders the rank of the status column as a SQL CASE
// expression, so the store enforces the same order as Advance.
func statusRankSQL(column string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(CASE %s", column)
	for _, r := range statusRanks {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", r.status, r.rank)
	}
	b.WriteString(" ELSE -1 END)")
	return b.String()
}

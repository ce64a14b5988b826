// Package version implements the commit DAG layered on pkg/kv: every
// resource mutation becomes an immutable, content-addressed Commit, and
// per-resource head pointers plus a global tip give O(1) lookups for the
// current state and O(depth) walks for history and conflict detection.
package version

import (
	"time"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

// Op distinguishes the two kinds of mutation a Change can carry.
type Op string

const (
	OpPut    Op = "Put"
	OpDelete Op = "Delete"
)

// Change is one resource mutation within a Commit. PrevCommitID is the
// head of Key at the time the change was proposed; it is both the basis
// for conflict detection and the link that lets HistoryOf walk a
// resource's history without scanning unrelated commits.
type Change struct {
	Key          resource.Key `json:"key"`
	Op           Op           `json:"op"`
	NewBytes     []byte       `json:"newBytes,omitempty"`
	PrevCommitID string       `json:"prevCommitId,omitempty"`
}

// Commit is an immutable node in the version DAG.
type Commit struct {
	ID        string    `json:"id"`
	Parents   []string  `json:"parents,omitempty"`
	Changes   []Change  `json:"changes"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// IsGenesis reports whether this is the root commit of the DAG.
func (c *Commit) IsGenesis() bool { return len(c.Parents) == 0 }

// ChangeFor returns the Change within this commit that touches key, if any.
func (c *Commit) ChangeFor(key resource.Key) (Change, bool) {
	for _, ch := range c.Changes {
		if ch.Key == key {
			return ch, true
		}
	}
	return Change{}, false
}

// Conflict describes a rejected write: the resource's head had already
// moved past the base the writer proposed from.
type Conflict struct {
	Key                resource.Key `json:"key"`
	BaseCommit         string       `json:"baseCommit"`
	CurrentHead        string       `json:"currentHead"`
	ConflictingCommits []string     `json:"conflictingCommits"`
}

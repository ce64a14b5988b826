package version

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
	"github.com/reddwarf-sh/reddwarf/pkg/kv"
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

// Store is the version store: a commit DAG layered on a kv.Store. Every
// public mutating method runs inside exactly one kv write transaction, so
// a failed call leaves no partial state behind.
type Store struct {
	kv *kv.Store
}

// New wraps an open kv.Store with version-store semantics.
func New(store *kv.Store) *Store {
	return &Store{kv: store}
}

// ConflictError is returned by ApplyChange/UpdateStatus when a proposed
// write's PrevCommitID no longer matches the resource's current head. It
// wraps an apierrors.Error of Kind Conflict so callers that only care
// about the taxonomy can use apierrors.Is/KindOf without caring about the
// richer descriptor.
type ConflictError struct {
	Err      *apierrors.Error
	Conflict Conflict
}

func newConflictError(c Conflict) *ConflictError {
	return &ConflictError{
		Err:      apierrors.Conflictf("resource %s: head moved from %q to %q", c.Key, c.BaseCommit, c.CurrentHead),
		Conflict: c,
	}
}

func (e *ConflictError) Error() string {
	return e.Err.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func resourceKey(key resource.Key) []byte {
	return kv.ResourceKey(key.GVK.StorageToken(), key.Namespace, key.Name)
}

func headKey(key resource.Key) []byte {
	return kv.HeadKey(key.GVK.StorageToken(), key.Namespace, key.Name)
}

func readHead(r kv.ReadView, key resource.Key) (string, error) {
	val, err := r.Get(headKey(key))
	if err != nil {
		if apierrors.Is(err, apierrors.NotFound) {
			return "", nil
		}
		return "", err
	}
	return string(val), nil
}

func readTip(r kv.ReadView) (string, error) {
	val, err := r.Get(kv.TipKey())
	if err != nil {
		if apierrors.Is(err, apierrors.NotFound) {
			return "", nil
		}
		return "", err
	}
	return string(val), nil
}

func getCommit(r kv.ReadView, id string) (*Commit, error) {
	raw, err := r.Get(kv.CommitKey(id))
	if err != nil {
		if apierrors.Is(err, apierrors.NotFound) {
			return nil, apierrors.NotFoundf("commit %q not found", id)
		}
		return nil, err
	}
	var c Commit
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, apierrors.Wrap(apierrors.Corruption, err, "decode commit "+id)
	}
	return &c, nil
}

// GetCommit returns the commit with the given id.
func (s *Store) GetCommit(id string) (*Commit, error) {
	var c *Commit
	err := s.kv.View(func(r kv.ReadView) error {
		got, err := getCommit(r, id)
		c = got
		return err
	})
	return c, err
}

// Head returns the current head commit id for key, and whether the
// resource has ever been written.
func (s *Store) Head(key resource.Key) (string, bool, error) {
	var head string
	var exists bool
	err := s.kv.View(func(r kv.ReadView) error {
		h, err := readHead(r, key)
		if err != nil {
			return err
		}
		head, exists = h, h != ""
		return nil
	})
	return head, exists, err
}

// Tip returns the current global tip commit id, or "" if the DAG is empty.
func (s *Store) Tip() (string, error) {
	var tip string
	err := s.kv.View(func(r kv.ReadView) error {
		t, err := readTip(r)
		tip = t
		return err
	})
	return tip, err
}

// GetResource reads the current payload for key, or NotFound.
func (s *Store) GetResource(key resource.Key) ([]byte, error) {
	var raw []byte
	err := s.kv.View(func(r kv.ReadView) error {
		v, err := r.Get(resourceKey(key))
		if err != nil {
			return err
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	return raw, err
}

// ListResources returns every resource payload whose key matches gvk and,
// if namespace != "", that namespace too. Results are not ordered; callers
// that need (namespace, name) order (e.g. LIST) sort the decoded objects.
func (s *Store) ListResources(gvk resource.GroupVersionKind, namespace string) (map[resource.Key][]byte, error) {
	out := map[resource.Key][]byte{}
	err := s.kv.View(func(r kv.ReadView) error {
		var prefix []byte
		if namespace == "" {
			prefix = kv.ResourcePrefix(gvk.StorageToken())
		} else {
			prefix = kv.ResourcePrefix(gvk.StorageToken(), namespace)
		}
		it := r.Range(prefix)
		for it.Next() {
			parts, err := kv.DecodeKey(it.Key())
			if err != nil {
				return apierrors.Wrap(apierrors.Corruption, err, "decode resource key")
			}
			if len(parts) != 4 {
				continue
			}
			key := resource.Key{GVK: gvk, Namespace: parts[2], Name: parts[3]}
			out[key] = append([]byte(nil), it.Value()...)
		}
		return nil
	})
	return out, err
}

// applyChangeTxn performs the core of ApplyChange inside an already-open
// write transaction: conflict-check every change, persist the commit and
// resource payloads, and advance per-resource heads and the tip.
func applyChangeTxn(w kv.WriteTxn, changes []Change, message string) (*Commit, error) {
	if len(changes) == 0 {
		return nil, apierrors.BadRequestf("apply_change: empty change set")
	}

	tip, err := readTip(w)
	if err != nil {
		return nil, err
	}
	var parents []string
	if tip != "" {
		parents = []string{tip}
	}

	for _, ch := range changes {
		head, err := readHead(w, ch.Key)
		if err != nil {
			return nil, err
		}
		if ch.PrevCommitID != head {
			conflicting, err := conflictingCommits(w, ch.Key, ch.PrevCommitID, head)
			if err != nil {
				return nil, err
			}
			return nil, newConflictError(Conflict{
				Key:                ch.Key,
				BaseCommit:         ch.PrevCommitID,
				CurrentHead:        head,
				ConflictingCommits: conflicting,
			})
		}
	}

	now := time.Now().UTC()
	id, err := computeCommitID(parents, now, changes, message)
	if err != nil {
		return nil, err
	}
	commit := &Commit{ID: id, Parents: parents, Changes: changes, Timestamp: now, Message: message}

	raw, err := json.Marshal(commit)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Internal, err, "encode commit")
	}
	if err := w.Put(kv.CommitKey(id), raw); err != nil {
		return nil, err
	}

	for _, ch := range changes {
		switch ch.Op {
		case OpPut:
			if err := w.Put(resourceKey(ch.Key), ch.NewBytes); err != nil {
				return nil, err
			}
		case OpDelete:
			if err := w.Delete(resourceKey(ch.Key)); err != nil {
				return nil, err
			}
		default:
			return nil, apierrors.BadRequestf("apply_change: unknown op %q", ch.Op)
		}
		if err := w.Put(headKey(ch.Key), []byte(id)); err != nil {
			return nil, err
		}
	}
	if err := w.Put(kv.TipKey(), []byte(id)); err != nil {
		return nil, err
	}

	return commit, nil
}

// ApplyChange writes every change in changes plus a new commit atomically.
// parents is always [tip] (or [] for the genesis commit) per the
// single-writer core; merge commits with multiple parents are reserved for
// a future multi-writer layer.
func (s *Store) ApplyChange(changes []Change, message string) (*Commit, error) {
	var commit *Commit
	err := s.kv.Update(func(w kv.WriteTxn) error {
		c, err := applyChangeTxn(w, changes, message)
		commit = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return commit, nil
}

// UpdateStatus mutates only the "status" field of key's current payload,
// leaving spec and metadata as stored. The read and the write run in one kv
// write transaction, so no other write can land between them; a client
// write proposed from the head this call replaces gets a Conflict afterwards.
// This is the controller's narrow path; external clients write status
// through the same PUT/PATCH path as everything else.
func (s *Store) UpdateStatus(key resource.Key, mutate func(statusRaw json.RawMessage) (json.RawMessage, error)) (*Commit, error) {
	var commit *Commit
	err := s.kv.Update(func(w kv.WriteTxn) error {
		head, err := readHead(w, key)
		if err != nil {
			return err
		}
		if head == "" {
			return apierrors.NotFoundf("resource %s not found", key)
		}
		raw, err := w.Get(resourceKey(key))
		if err != nil {
			return err
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return apierrors.Wrap(apierrors.Internal, err, "decode resource")
		}
		newStatus, err := mutate(obj["status"])
		if err != nil {
			return err
		}
		obj["status"] = newStatus
		newRaw, err := json.Marshal(obj)
		if err != nil {
			return apierrors.Wrap(apierrors.Internal, err, "encode resource")
		}
		c, err := applyChangeTxn(w, []Change{{Key: key, Op: OpPut, NewBytes: newRaw, PrevCommitID: head}}, "status update")
		commit = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return commit, nil
}

// conflictingCommits walks the per-key history thread from head back to
// base (exclusive), returning every commit id in between. Every commit on
// this thread touches key by construction, since the thread is built from
// each Change's PrevCommitID rather than the general parent chain.
func conflictingCommits(r kv.ReadView, key resource.Key, base, head string) ([]string, error) {
	var ids []string
	cur := head
	for cur != "" && cur != base {
		c, err := getCommit(r, cur)
		if err != nil {
			return nil, err
		}
		ids = append(ids, cur)
		ch, ok := c.ChangeFor(key)
		if !ok {
			break
		}
		cur = ch.PrevCommitID
	}
	return ids, nil
}

// DetectConflict previews whether a write proposed from base would
// conflict, without taking the writer latch. ApplyChange re-checks
// authoritatively under the latch regardless of what this reports.
func (s *Store) DetectConflict(key resource.Key, base string) (*Conflict, error) {
	var conflict *Conflict
	err := s.kv.View(func(r kv.ReadView) error {
		head, err := readHead(r, key)
		if err != nil {
			return err
		}
		if head == base {
			return nil
		}
		conflicting, err := conflictingCommits(r, key, base, head)
		if err != nil {
			return err
		}
		conflict = &Conflict{Key: key, BaseCommit: base, CurrentHead: head, ConflictingCommits: conflicting}
		return nil
	})
	return conflict, err
}

// HistoryOf returns the commits that touched key, most recent first,
// following the per-key thread described in conflictingCommits. max <= 0
// means unbounded.
func (s *Store) HistoryOf(key resource.Key, max int) ([]*Commit, error) {
	var result []*Commit
	err := s.kv.View(func(r kv.ReadView) error {
		head, err := readHead(r, key)
		if err != nil {
			return err
		}
		cur := head
		for cur != "" {
			if max > 0 && len(result) >= max {
				break
			}
			c, err := getCommit(r, cur)
			if err != nil {
				return err
			}
			result = append(result, c)
			ch, ok := c.ChangeFor(key)
			if !ok {
				break
			}
			cur = ch.PrevCommitID
		}
		return nil
	})
	return result, err
}

// ListCommits walks the DAG breadth-first from `from` (or the tip, if
// from == ""), by parent fan-out, ties broken by timestamp then commit_id.
// max <= 0 means unbounded.
func (s *Store) ListCommits(from string, max int) ([]*Commit, error) {
	var result []*Commit
	err := s.kv.View(func(r kv.ReadView) error {
		start := from
		if start == "" {
			tip, err := readTip(r)
			if err != nil {
				return err
			}
			start = tip
		}
		if start == "" {
			return nil
		}

		visited := map[string]bool{}
		level := []string{start}
		for len(level) > 0 {
			type node struct {
				id string
				c  *Commit
			}
			var nodes []node
			for _, id := range level {
				if visited[id] {
					continue
				}
				visited[id] = true
				c, err := getCommit(r, id)
				if err != nil {
					return err
				}
				nodes = append(nodes, node{id, c})
			}
			sort.Slice(nodes, func(i, j int) bool {
				if !nodes[i].c.Timestamp.Equal(nodes[j].c.Timestamp) {
					return nodes[i].c.Timestamp.Before(nodes[j].c.Timestamp)
				}
				return nodes[i].id < nodes[j].id
			})

			var next []string
			for _, n := range nodes {
				result = append(result, n.c)
				if max > 0 && len(result) >= max {
					return nil
				}
				next = append(next, n.c.Parents...)
			}
			level = next
		}
		return nil
	})
	return result, err
}

// ancestorDistances returns every ancestor of start (including itself)
// mapped to its BFS distance from start.
func ancestorDistances(r kv.ReadView, start string) (map[string]int, error) {
	dist := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		c, err := getCommit(r, id)
		if err != nil {
			return nil, err
		}
		for _, p := range c.Parents {
			if _, seen := dist[p]; !seen {
				dist[p] = dist[id] + 1
				queue = append(queue, p)
			}
		}
	}
	return dist, nil
}

// CommonAncestor returns the lowest common ancestor of a and b: the
// common ancestor minimizing combined distance from both, ties broken by
// the smaller commit id lexicographically. Returns "" if a and b share no
// history (should not happen within one DAG, since every commit chain
// terminates at the same genesis commit).
func (s *Store) CommonAncestor(a, b string) (string, error) {
	var best string
	err := s.kv.View(func(r kv.ReadView) error {
		distA, err := ancestorDistances(r, a)
		if err != nil {
			return err
		}
		distB, err := ancestorDistances(r, b)
		if err != nil {
			return err
		}
		bestSum := -1
		for id, da := range distA {
			db, ok := distB[id]
			if !ok {
				continue
			}
			sum := da + db
			if bestSum == -1 || sum < bestSum || (sum == bestSum && id < best) {
				bestSum, best = sum, id
			}
		}
		return nil
	})
	return best, err
}

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
	"github.com/reddwarf-sh/reddwarf/pkg/events"
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
	"github.com/reddwarf-sh/reddwarf/pkg/version"
)

// watchEvent is one line of a watch stream's body: a type tag plus the
// object as it looked immediately after the commit that produced it.
type watchEvent struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

func writeWatchLine(w io.Writer, typ string, obj json.RawMessage) error {
	line, err := json.Marshal(watchEvent{Type: typ, Object: obj})
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return err
}

// kindForChange derives the watch event type for one change within a
// commit: a Put whose PrevCommitID is empty is the resource's first
// write (ADDED); any later Put is MODIFIED; a Delete is DELETED.
func kindForChange(ch version.Change) events.Kind {
	switch ch.Op {
	case version.OpDelete:
		return events.Deleted
	default:
		if ch.PrevCommitID == "" {
			return events.Added
		}
		return events.Modified
	}
}

// payloadForChange renders the object a watch line should carry for one
// commit's change to key. Put changes carry their own NewBytes; Delete
// changes carry no payload of their own, so the last known payload is
// recovered from the predecessor commit the delete's PrevCommitID names.
func (s *Server) payloadForChange(vs *version.Store, commit *version.Commit, ch version.Change) (json.RawMessage, error) {
	if ch.Op != version.OpDelete {
		return withResourceVersion(ch.NewBytes, commit.ID)
	}
	if ch.PrevCommitID == "" {
		return nil, apierrors.Internalf("delete of %s has no predecessor commit to recover payload from", ch.Key)
	}
	prev, err := vs.GetCommit(ch.PrevCommitID)
	if err != nil {
		return nil, err
	}
	prevCh, ok := prev.ChangeFor(ch.Key)
	if !ok {
		return nil, apierrors.Internalf("commit %s has no change for %s", prev.ID, ch.Key)
	}
	return withResourceVersion(prevCh.NewBytes, commit.ID)
}

// watch implements GET .../<kind>?watch=true[&resourceVersion=X]: a
// long-lived, line-delimited JSON stream of ADDED/MODIFIED/DELETED events
// scoped to spec.GVK and, for namespaced kinds, the request's :namespace.
//
// Subscribing to the broker happens before any replay read, so a commit
// that lands while replay is still running is never lost — at worst it is
// delivered twice, once from replay and once from the live tail, which a
// client already has to tolerate per spec (resourceVersion is idempotent
// to re-apply). There is no narrower race than that without a snapshot
// isolation guarantee pkg/kv does not expose to callers.
func (s *Server) watch(c echo.Context, spec KindSpec) error {
	ns := c.Param("namespace")
	fromVersion := c.QueryParam("resourceVersion")

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/json")
	resp.WriteHeader(http.StatusOK)

	last := fromVersion
	if fromVersion == "" {
		v, err := s.watchReplayAll(resp, spec, ns)
		if err != nil {
			return nil
		}
		last = v
	} else {
		v, err := s.watchReplayFrom(resp, spec, ns, fromVersion)
		if err != nil {
			return nil
		}
		last = v
	}
	resp.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			// Hit when the request context ends, i.e. on client disconnect.
			// Server.Shutdown does not cancel the contexts of open watch
			// requests, so no BOOKMARK is written on server shutdown. The
			// BOOKMARK carries the last resourceVersion this stream sent, so
			// the client can resume a fresh watch from there.
			s.writeBookmark(resp, spec, last)
			return nil
		case ev, ok := <-sub.Events:
			if !ok {
				if sub.Overflowed() {
					s.writeGone(resp, spec, last)
				}
				return nil
			}
			if !ev.Matches(spec.GVK, ns) {
				continue
			}
			commit, err := s.vs.GetCommit(ev.CommitID)
			if err != nil {
				continue
			}
			ch, ok := commit.ChangeFor(ev.Key)
			if !ok {
				continue
			}
			obj, err := s.payloadForChange(s.vs, commit, ch)
			if err != nil {
				continue
			}
			if err := writeWatchLine(resp, string(ev.Kind), obj); err != nil {
				return nil
			}
			resp.Flush()
			last = ev.CommitID
		}
	}
}

// watchReplayAll sends a synthetic ADDED for every resource currently in
// scope, in (namespace, name) order, for a watch opened without a
// resourceVersion. It returns the resourceVersion of the last line sent,
// or fromVersion's caller-supplied "" if scope was empty.
func (s *Server) watchReplayAll(w io.Writer, spec KindSpec, namespace string) (string, error) {
	entries, err := s.vs.ListResourceEntries(spec.GVK, namespace)
	if err != nil {
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key.Namespace != entries[j].Key.Namespace {
			return entries[i].Key.Namespace < entries[j].Key.Namespace
		}
		return entries[i].Key.Name < entries[j].Key.Name
	})
	var last string
	for _, e := range entries {
		obj, err := withResourceVersion(e.Raw, e.ResourceVersion)
		if err != nil {
			continue
		}
		if err := writeWatchLine(w, string(events.Added), obj); err != nil {
			return last, err
		}
		last = e.ResourceVersion
	}
	return last, nil
}

// watchReplayFrom sends every commit after fromVersion that touched a
// resource in scope, oldest first, so a client resuming a watch sees
// exactly the events it would have seen had it never disconnected. It
// returns the resourceVersion of the last line sent, or fromVersion if
// nothing in scope changed since.
func (s *Server) watchReplayFrom(w io.Writer, spec KindSpec, namespace, fromVersion string) (string, error) {
	commits, err := s.vs.ListCommits("", 0)
	if err != nil {
		return fromVersion, err
	}

	var after []*version.Commit
	for _, commit := range commits {
		if commit.ID == fromVersion {
			break
		}
		after = append(after, commit)
	}

	last := fromVersion
	for i := len(after) - 1; i >= 0; i-- {
		commit := after[i]
		for _, ch := range commit.Changes {
			if !matchesScope(ch.Key, spec.GVK, namespace) {
				continue
			}
			obj, err := s.payloadForChange(s.vs, commit, ch)
			if err != nil {
				continue
			}
			if err := writeWatchLine(w, string(kindForChange(ch)), obj); err != nil {
				return last, err
			}
			last = commit.ID
		}
	}
	return last, nil
}

func matchesScope(key resource.Key, gvk resource.GroupVersionKind, namespace string) bool {
	if key.GVK != gvk {
		return false
	}
	return namespace == "" || key.Namespace == namespace
}

// writeBookmark emits the synthetic terminal event a watcher sees when its
// request context ends (client disconnect). Server.Shutdown does not end
// open watch streams, so this is not written on server shutdown. The
// carried resourceVersion is the last one the client was actually sent, so
// it can reopen the watch from exactly this point without missing or
// redelivering anything beyond what it already has to tolerate.
func (s *Server) writeBookmark(w io.Writer, spec KindSpec, resourceVersion string) {
	obj := map[string]interface{}{
		"apiVersion": spec.GVK.APIVersion(),
		"kind":       spec.GVK.Kind,
		"metadata":   map[string]string{"resourceVersion": resourceVersion},
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return
	}
	_ = writeWatchLine(w, "BOOKMARK", raw)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// writeGone emits the synthetic terminal event a watcher sees when its
// subscriber buffer overflowed: the broker has already stopped delivering
// to it, so this is the last line it will ever receive on this
// connection. resourceVersion carries the last one actually delivered on
// this stream, so the client can reopen the watch from exactly that point
// instead of guessing or re-listing from scratch.
func (s *Server) writeGone(w io.Writer, spec KindSpec, resourceVersion string) {
	gone := map[string]interface{}{
		"apiVersion": spec.GVK.APIVersion(),
		"kind":       "Status",
		"status":     "Failure",
		"code":       http.StatusGone,
		"reason":     "Gone",
		"message":    "watch buffer overflowed; resume with a fresh resourceVersion",
		"metadata":   map[string]string{"resourceVersion": resourceVersion},
	}
	raw, err := json.Marshal(gone)
	if err != nil {
		return
	}
	_ = writeWatchLine(w, "GONE", raw)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

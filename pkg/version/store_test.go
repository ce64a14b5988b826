package version

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
	"github.com/reddwarf-sh/reddwarf/pkg/kv"
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	k, err := kv.Open(filepath.Join(dir, "reddwarf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return New(k)
}

func podKey(name string) resource.Key {
	gvk := resource.FromAPIVersionKind("v1", "Pod")
	return resource.NewKey(gvk, "default", name)
}

func TestApplyChangeCreateThenHeadCorrectness(t *testing.T) {
	s := newTestStore(t)
	key := podKey("p1")

	commit, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":1}`)}}, "create")
	require.NoError(t, err)
	assert.NotEmpty(t, commit.ID)
	assert.True(t, commit.IsGenesis())

	head, exists, err := s.Head(key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, commit.ID, head)

	tip, err := s.Tip()
	require.NoError(t, err)
	assert.Equal(t, commit.ID, tip)

	raw, err := s.GetResource(key)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(raw))
}

func TestApplyChangeUpdateAdvancesHead(t *testing.T) {
	s := newTestStore(t)
	key := podKey("p1")

	c1, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":1}`)}}, "create")
	require.NoError(t, err)

	c2, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":2}`), PrevCommitID: c1.ID}}, "update")
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
	assert.Equal(t, []string{c1.ID}, c2.Parents)

	head, _, err := s.Head(key)
	require.NoError(t, err)
	assert.Equal(t, c2.ID, head)
}

func TestApplyChangeDeleteRemovesPayloadButKeepsHistory(t *testing.T) {
	s := newTestStore(t)
	key := podKey("p1")

	c1, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":1}`)}}, "create")
	require.NoError(t, err)

	c2, err := s.ApplyChange([]Change{{Key: key, Op: OpDelete, PrevCommitID: c1.ID}}, "delete")
	require.NoError(t, err)

	_, err = s.GetResource(key)
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.NotFound))

	history, err := s.HistoryOf(key, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, c2.ID, history[0].ID)
	assert.Equal(t, c1.ID, history[1].ID)
}

func TestApplyChangeConflictExactness(t *testing.T) {
	s := newTestStore(t)
	key := podKey("p1")

	c1, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":1}`)}}, "create")
	require.NoError(t, err)

	// winner
	c2, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":2}`), PrevCommitID: c1.ID}}, "winner")
	require.NoError(t, err)

	// loser still proposes from c1, which is now stale
	_, err = s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":3}`), PrevCommitID: c1.ID}}, "loser")
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.Conflict))

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, c1.ID, conflictErr.Conflict.BaseCommit)
	assert.Equal(t, c2.ID, conflictErr.Conflict.CurrentHead)
	assert.Contains(t, conflictErr.Conflict.ConflictingCommits, c2.ID)
}

func TestApplyChangeAtomicityOnBadOp(t *testing.T) {
	s := newTestStore(t)
	key := podKey("p1")

	tipBefore, err := s.Tip()
	require.NoError(t, err)
	require.Empty(t, tipBefore)

	_, err = s.ApplyChange([]Change{{Key: key, Op: "Bogus", NewBytes: []byte(`{}`)}}, "bad")
	require.Error(t, err)

	tipAfter, err := s.Tip()
	require.NoError(t, err)
	assert.Empty(t, tipAfter, "a failed apply_change must not move the tip")

	_, _, exists := mustHead(t, s, key)
	assert.False(t, exists)
}

func mustHead(t *testing.T, s *Store, key resource.Key) (string, *Store, bool) {
	t.Helper()
	head, exists, err := s.Head(key)
	require.NoError(t, err)
	return head, s, exists
}

func TestCommonAncestorOnLinearHistory(t *testing.T) {
	s := newTestStore(t)
	key := podKey("p1")

	c1, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":1}`)}}, "1")
	require.NoError(t, err)
	c2, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":2}`), PrevCommitID: c1.ID}}, "2")
	require.NoError(t, err)
	c3, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":3}`), PrevCommitID: c2.ID}}, "3")
	require.NoError(t, err)

	lca, err := s.CommonAncestor(c1.ID, c3.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, lca)

	lca, err = s.CommonAncestor(c3.ID, c3.ID)
	require.NoError(t, err)
	assert.Equal(t, c3.ID, lca)
}

func TestListCommitsWalksNewestFirstFromTip(t *testing.T) {
	s := newTestStore(t)
	key := podKey("p1")

	c1, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":1}`)}}, "1")
	require.NoError(t, err)
	c2, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: []byte(`{"v":2}`), PrevCommitID: c1.ID}}, "2")
	require.NoError(t, err)

	commits, err := s.ListCommits("", 0)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, c2.ID, commits[0].ID)
	assert.Equal(t, c1.ID, commits[1].ID)
}

func TestUpdateStatusLeavesSpecAlone(t *testing.T) {
	s := newTestStore(t)
	key := podKey("p1")

	pod := &resource.Pod{
		TypeMeta: resource.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		Metadata: resource.Metadata{Name: "p1", Namespace: "default"},
		Spec:     resource.PodSpec{Containers: []resource.Container{{Name: "c", Image: "nginx"}}},
		Status:   resource.PodStatus{Phase: resource.PodPending},
	}
	raw, err := json.Marshal(pod)
	require.NoError(t, err)

	c1, err := s.ApplyChange([]Change{{Key: key, Op: OpPut, NewBytes: raw}}, "create")
	require.NoError(t, err)

	c2, err := s.UpdateStatus(key, func(statusRaw json.RawMessage) (json.RawMessage, error) {
		var st resource.PodStatus
		require.NoError(t, json.Unmarshal(statusRaw, &st))
		st.Phase = resource.PodRunning
		return json.Marshal(st)
	})
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)

	updatedRaw, err := s.GetResource(key)
	require.NoError(t, err)
	var updated resource.Pod
	require.NoError(t, json.Unmarshal(updatedRaw, &updated))
	assert.Equal(t, resource.PodRunning, updated.Status.Phase)
	assert.Equal(t, "nginx", updated.Spec.Containers[0].Image)
}

func TestApplyChangeRejectsEmptyChangeSet(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ApplyChange(nil, "nothing")
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.BadRequest))
}

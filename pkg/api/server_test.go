package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwarf-sh/reddwarf/pkg/events"
	"github.com/reddwarf-sh/reddwarf/pkg/kv"
	"github.com/reddwarf-sh/reddwarf/pkg/version"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	store, err := kv.Open(filepath.Join(dir, "reddwarf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vs := version.New(store)
	bus := events.NewBroker()
	return NewServer(vs, bus)
}

func podBody(namespace, name string) string {
	return `{"apiVersion":"v1","kind":"Pod","metadata":{"name":"` + name + `","namespace":"` + namespace + `"},` +
		`"spec":{"containers":[{"name":"app","image":"busybox:latest"}]}}`
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestCreateThenGetPod(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "p1"))
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doRequest(t, s, http.MethodGet, "/api/v1/namespaces/default/pods/p1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Metadata struct {
			Name            string `json:"name"`
			ResourceVersion string `json:"resourceVersion"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "p1", got.Metadata.Name)
	assert.NotEmpty(t, got.Metadata.ResourceVersion)
}

func TestCreateDuplicateIsAlreadyExists(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "p1"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "p1"))
	assert.Equal(t, http.StatusConflict, w.Code)

	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "AlreadyExists", st.Reason)
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/v1/namespaces/default/pods/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "NotFound", st.Reason)
}

func TestReplaceWithStaleResourceVersionConflicts(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "p1"))
	require.Equal(t, http.StatusCreated, w.Code)

	// Build a replace body carrying a bogus resourceVersion inside metadata.
	replaceBody := `{"apiVersion":"v1","kind":"Pod","metadata":{"name":"p1","namespace":"default","resourceVersion":"does-not-exist"},` +
		`"spec":{"containers":[{"name":"app","image":"busybox:latest"}]}}`

	w = doRequest(t, s, http.MethodPut, "/api/v1/namespaces/default/pods/p1", replaceBody)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteThenFinalizeRemovesResource(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "p1"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, s, http.MethodDelete, "/api/v1/namespaces/default/pods/p1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var deleted struct {
		Metadata struct {
			DeletionTimestamp *time.Time `json:"deletionTimestamp"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deleted))
	require.NotNil(t, deleted.Metadata.DeletionTimestamp)

	w = doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods/p1/finalize", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/v1/namespaces/default/pods/p1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchMergesStatusWithoutTouchingSpec(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "p1"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, s, http.MethodPatch, "/api/v1/namespaces/default/pods/p1", `{"status":{"phase":"Running"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var patched struct {
		Spec struct {
			Containers []struct{ Image string } `json:"containers"`
		} `json:"spec"`
		Status struct {
			Phase string `json:"phase"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &patched))
	assert.Equal(t, "Running", patched.Status.Phase)
	require.Len(t, patched.Spec.Containers, 1)
	assert.Equal(t, "busybox:latest", patched.Spec.Containers[0].Image)
}

func TestListReturnsSortedByNamespaceThenName(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusCreated, doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "zeta")).Code)
	require.Equal(t, http.StatusCreated, doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "alpha")).Code)

	w := doRequest(t, s, http.MethodGet, "/api/v1/namespaces/default/pods", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Items []struct {
			Metadata struct{ Name string } `json:"metadata"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, "alpha", list.Items[0].Metadata.Name)
	assert.Equal(t, "zeta", list.Items[1].Metadata.Name)
}

func TestListAllNamespacesAggregatesAcrossNamespaces(t *testing.T) {
	s := newTestServer(t)

	nsBody := `{"apiVersion":"v1","kind":"Namespace","metadata":{"name":"team-a"},"spec":{}}`
	require.Equal(t, http.StatusCreated, doRequest(t, s, http.MethodPost, "/api/v1/namespaces", nsBody).Code)

	require.Equal(t, http.StatusCreated, doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "p1")).Code)
	require.Equal(t, http.StatusCreated, doRequest(t, s, http.MethodPost, "/api/v1/namespaces/team-a/pods", podBody("team-a", "p2")).Code)

	w := doRequest(t, s, http.MethodGet, "/api/v1/pods", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Items, 2)
}

func TestWatchWithoutResourceVersionReplaysExistingThenTails(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusCreated, doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "p1")).Code)

	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodGet, "/api/v1/namespaces/default/pods?watch=true", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.Handler().ServeHTTP(w, r)
		close(done)
	}()

	// Give the replay loop a moment to write the synthetic ADDED line,
	// then end the stream so the handler goroutine can return.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	scanner := bufio.NewScanner(w.Body)
	require.True(t, scanner.Scan())
	var ev watchEvent
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
	assert.Equal(t, "ADDED", ev.Type)
}

func TestHealthzAlwaysOK(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyzReflectsStore(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsExposesCommitAndRequestCounters(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodPost, "/api/v1/namespaces/default/pods", podBody("default", "metrics-pod"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "reddwarf_commits_total")
	assert.Contains(t, body, "reddwarf_api_requests_total")
}

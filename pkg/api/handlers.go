package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/labstack/echo/v4"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
	"github.com/reddwarf-sh/reddwarf/pkg/events"
	"github.com/reddwarf-sh/reddwarf/pkg/metrics"
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
	"github.com/reddwarf-sh/reddwarf/pkg/version"
)

// kindHandler implements the generic CRUD + WATCH surface for one
// KindSpec. Every method operates purely through resource.Object and
// resource.Validator, so this code never changes when a kind is added.
type kindHandler struct {
	spec KindSpec
	srv  *Server
}

// instrument records APIRequestsTotal/APIRequestDuration for one request,
// reading the final response status after the handler body has run — call
// it as the first line of a handler via defer h.instrument(c)().
func (h *kindHandler) instrument(c echo.Context) func() {
	timer := metrics.NewTimer()
	method := c.Request().Method
	kind := h.spec.GVK.Kind
	return func() {
		status := strconv.Itoa(c.Response().Status)
		metrics.APIRequestsTotal.WithLabelValues(method, kind, status).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, method, kind)
	}
}

func isWatchRequest(c echo.Context) bool {
	w := c.QueryParam("watch")
	return w == "true" || w == "1"
}

// key derives a resource.Key from an item route's :namespace/:name params.
func (h *kindHandler) key(c echo.Context) resource.Key {
	name := c.Param("name")
	if h.spec.Namespaced {
		return resource.NewKey(h.spec.GVK, c.Param("namespace"), name)
	}
	return resource.ClusterScoped(h.spec.GVK, name)
}

func (h *kindHandler) get(c echo.Context) error {
	defer h.instrument(c)()
	entry, err := h.srv.vs.GetResourceEntry(h.key(c))
	if err != nil {
		return writeError(c, err)
	}
	withVer, err := withResourceVersion(entry.Raw, entry.ResourceVersion)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSONBlob(http.StatusOK, withVer)
}

// list serves both the collection GET (returning a List envelope) and,
// when ?watch=true is set, upgrades to the streaming watch handler.
func (h *kindHandler) list(c echo.Context) error {
	defer h.instrument(c)()
	if isWatchRequest(c) {
		return h.srv.watch(c, h.spec)
	}

	ns := c.Param("namespace")
	entries, err := h.srv.vs.ListResourceEntries(h.spec.GVK, ns)
	if err != nil {
		return writeError(c, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key.Namespace != entries[j].Key.Namespace {
			return entries[i].Key.Namespace < entries[j].Key.Namespace
		}
		return entries[i].Key.Name < entries[j].Key.Name
	})

	items := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		withVer, err := withResourceVersion(e.Raw, e.ResourceVersion)
		if err != nil {
			return writeError(c, err)
		}
		items = append(items, withVer)
	}

	list := map[string]interface{}{
		"apiVersion": h.spec.GVK.APIVersion(),
		"kind":       h.spec.GVK.Kind + "List",
		"items":      items,
	}
	return c.JSON(http.StatusOK, list)
}

func (h *kindHandler) create(c echo.Context) error {
	defer h.instrument(c)()
	obj := h.spec.New()
	if err := json.NewDecoder(c.Request().Body).Decode(obj); err != nil {
		return writeError(c, apierrors.BadRequestf("decode request body: %v", err))
	}

	md := obj.GetMetadata()
	ns := c.Param("namespace")
	var key resource.Key
	if h.spec.Namespaced {
		key = resource.NewKey(h.spec.GVK, ns, md.Name)
		if err := h.srv.ensureNamespace(ns); err != nil {
			return writeError(c, err)
		}
	} else {
		key = resource.ClusterScoped(h.spec.GVK, md.Name)
	}

	if err := resource.ValidateObject(key, obj); err != nil {
		return writeError(c, err)
	}

	if _, exists, err := h.srv.vs.Head(key); err != nil {
		return writeError(c, err)
	} else if exists {
		return writeError(c, apierrors.AlreadyExistsf("%s already exists", key))
	}

	md.UID = resource.NewUID()
	md.CreationTimestamp = metav1.NewTime(time.Now().UTC())
	md.ResourceVersion = ""
	md.DeletionTimestamp = nil

	raw, err := json.Marshal(obj)
	if err != nil {
		return writeError(c, apierrors.Wrap(apierrors.Internal, err, "encode resource"))
	}

	commit, err := h.srv.applyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw}}, "create "+key.String())
	if err != nil {
		return writeError(c, err)
	}

	withVer, err := withResourceVersion(raw, commit.ID)
	if err != nil {
		return writeError(c, err)
	}
	h.srv.publish(events.Added, key, commit.ID)
	return c.JSONBlob(http.StatusCreated, withVer)
}

func (h *kindHandler) replace(c echo.Context) error {
	defer h.instrument(c)()
	key := h.key(c)
	obj := h.spec.New()
	if err := json.NewDecoder(c.Request().Body).Decode(obj); err != nil {
		return writeError(c, apierrors.BadRequestf("decode request body: %v", err))
	}
	if err := resource.ValidateObject(key, obj); err != nil {
		return writeError(c, err)
	}

	md := obj.GetMetadata()
	prev := md.ResourceVersion
	if prev == "" {
		return writeError(c, apierrors.BadRequestf("metadata.resourceVersion is required for a replace"))
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return writeError(c, apierrors.Wrap(apierrors.Internal, err, "encode resource"))
	}

	commit, err := h.srv.applyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw, PrevCommitID: prev}}, "update "+key.String())
	if err != nil {
		return writeError(c, err)
	}

	withVer, err := withResourceVersion(raw, commit.ID)
	if err != nil {
		return writeError(c, err)
	}
	h.srv.publish(events.Modified, key, commit.ID)
	return c.JSONBlob(http.StatusOK, withVer)
}

func (h *kindHandler) patch(c echo.Context) error {
	defer h.instrument(c)()
	key := h.key(c)
	patchBytes, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, apierrors.BadRequestf("read request body: %v", err))
	}

	entry, err := h.srv.vs.GetResourceEntry(key)
	if err != nil {
		return writeError(c, err)
	}

	merged, err := jsonpatch.MergePatch(entry.Raw, patchBytes)
	if err != nil {
		return writeError(c, apierrors.BadRequestf("apply merge patch: %v", err))
	}

	obj := h.spec.New()
	if err := json.Unmarshal(merged, obj); err != nil {
		return writeError(c, apierrors.BadRequestf("decode merged resource: %v", err))
	}
	if err := resource.ValidateObject(key, obj); err != nil {
		return writeError(c, err)
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return writeError(c, apierrors.Wrap(apierrors.Internal, err, "encode resource"))
	}

	commit, err := h.srv.applyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw, PrevCommitID: entry.ResourceVersion}}, "patch "+key.String())
	if err != nil {
		return writeError(c, err)
	}

	withVer, err := withResourceVersion(raw, commit.ID)
	if err != nil {
		return writeError(c, err)
	}
	h.srv.publish(events.Modified, key, commit.ID)
	return c.JSONBlob(http.StatusOK, withVer)
}

// delete performs the soft delete: it stamps deletionTimestamp (and, for
// Pods, flips status.phase to Terminating) but leaves the object in the
// store for the owning controller to finalize.
func (h *kindHandler) delete(c echo.Context) error {
	defer h.instrument(c)()
	key := h.key(c)
	entry, err := h.srv.vs.GetResourceEntry(key)
	if err != nil {
		return writeError(c, err)
	}

	obj := h.spec.New()
	if err := json.Unmarshal(entry.Raw, obj); err != nil {
		return writeError(c, apierrors.Wrap(apierrors.Internal, err, "decode resource"))
	}
	md := obj.GetMetadata()
	if md.IsDeleting() {
		withVer, err := withResourceVersion(entry.Raw, entry.ResourceVersion)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSONBlob(http.StatusOK, withVer)
	}

	now := metav1.NewTime(time.Now().UTC())
	md.DeletionTimestamp = &now
	if pod, ok := obj.(*resource.Pod); ok {
		pod.Status.Phase = resource.PodTerminating
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return writeError(c, apierrors.Wrap(apierrors.Internal, err, "encode resource"))
	}

	commit, err := h.srv.applyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw, PrevCommitID: entry.ResourceVersion}}, "delete "+key.String())
	if err != nil {
		return writeError(c, err)
	}

	withVer, err := withResourceVersion(raw, commit.ID)
	if err != nil {
		return writeError(c, err)
	}
	h.srv.publish(events.Modified, key, commit.ID)
	return c.JSONBlob(http.StatusOK, withVer)
}

// finalize performs the hard delete: it removes the resource payload and
// head pointer entirely. Only a controller that has released every
// finalizer should be calling this.
func (h *kindHandler) finalize(c echo.Context) error {
	defer h.instrument(c)()
	key := h.key(c)
	entry, err := h.srv.vs.GetResourceEntry(key)
	if err != nil {
		return writeError(c, err)
	}

	commit, err := h.srv.applyChange([]version.Change{{Key: key, Op: version.OpDelete, PrevCommitID: entry.ResourceVersion}}, "finalize "+key.String())
	if err != nil {
		return writeError(c, err)
	}

	h.srv.publish(events.Deleted, key, commit.ID)
	return c.NoContent(http.StatusOK)
}

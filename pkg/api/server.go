package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
	"github.com/reddwarf-sh/reddwarf/pkg/events"
	"github.com/reddwarf-sh/reddwarf/pkg/log"
	"github.com/reddwarf-sh/reddwarf/pkg/metrics"
	"github.com/reddwarf-sh/reddwarf/pkg/resource"
	"github.com/reddwarf-sh/reddwarf/pkg/version"
)

// namespaceGVK is the well-known GVK for the Namespace kind, used by the
// bootstrap check every namespaced write runs through.
var namespaceGVK = resource.FromAPIVersionKind("v1", "Namespace")

// Server wraps an echo instance wired to one version.Store and one
// events.Broker. It owns no other state: every request is served directly
// from pkg/version, and every committed write is published to bus so
// active watch streams see it immediately.
type Server struct {
	echo *echo.Echo
	vs   *version.Store
	bus  *events.Broker
}

// NewServer builds a Server ready to Start. vs and bus must already be
// open; Server never closes either.
func NewServer(vs *version.Store, bus *events.Broker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogMiddleware())

	s := &Server{echo: e, vs: vs, bus: bus}
	s.registerHealth()
	s.registerKinds()
	return s
}

// requestLogMiddleware logs one line per request at Info level, in the
// style of pkg/log's structured fields rather than echo's default text
// access log.
func requestLogMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.WithComponent("api").Info().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return err
		}
	}
}

// registerHealth mounts /healthz, /livez, /readyz and /metrics, adapted
// from the liveness/readiness split every Reddwarf component exposes:
// liveness never depends on the store, readiness does.
func (s *Server) registerHealth() {
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.echo.GET("/livez", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.echo.GET("/readyz", func(c echo.Context) error {
		if _, err := s.vs.Tip(); err != nil {
			return writeError(c, apierrors.Wrap(apierrors.Internal, err, "version store unreachable"))
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// registerKinds mounts the generic CRUD + WATCH routes for every entry in
// kindRegistry, namespaced or cluster-scoped according to its spec.
func (s *Server) registerKinds() {
	for _, spec := range kindRegistry {
		h := &kindHandler{spec: spec, srv: s}
		base := "/" + spec.GVK.APIPath()
		res := spec.GVK.ResourceName()

		if spec.Namespaced {
			coll := fmt.Sprintf("%s/namespaces/:namespace/%s", base, res)
			item := coll + "/:name"
			allColl := fmt.Sprintf("%s/%s", base, res)

			s.echo.GET(allColl, h.list)
			s.echo.GET(coll, h.list)
			s.echo.POST(coll, h.create)
			s.echo.GET(item, h.get)
			s.echo.PUT(item, h.replace)
			s.echo.PATCH(item, h.patch)
			s.echo.DELETE(item, h.delete)
			s.echo.POST(item+"/finalize", h.finalize)
		} else {
			coll := fmt.Sprintf("%s/%s", base, res)
			item := coll + "/:name"

			s.echo.GET(coll, h.list)
			s.echo.POST(coll, h.create)
			s.echo.GET(item, h.get)
			s.echo.PUT(item, h.replace)
			s.echo.PATCH(item, h.patch)
			s.echo.DELETE(item, h.delete)
			s.echo.POST(item+"/finalize", h.finalize)
		}
	}
}

// Start begins serving on addr. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops accepting connections and waits, up to ctx's deadline, for
// in-flight requests to finish. Open watch streams are not signalled and do
// not end on their own, so while one is open Shutdown waits until the
// deadline and returns ctx's error.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler returns the underlying http.Handler, for tests that want to
// drive the server with httptest rather than binding a real socket.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// applyChange wraps vs.ApplyChange with the commit-throughput and
// conflict-rate instrumentation every write path shares, namespaced or
// not, client-initiated or the bootstrap default-namespace write.
func (s *Server) applyChange(changes []version.Change, message string) (*version.Commit, error) {
	timer := metrics.NewTimer()
	commit, err := s.vs.ApplyChange(changes, message)
	timer.ObserveDuration(metrics.CommitApplyDuration)
	if err != nil {
		if apierrors.Is(err, apierrors.Conflict) && len(changes) > 0 {
			metrics.ConflictsTotal.WithLabelValues(changes[0].Key.GVK.Kind).Inc()
		}
		return nil, err
	}
	metrics.CommitsTotal.Inc()
	return commit, nil
}

// publish fans a committed change out to watch subscribers. It is
// best-effort by construction (see pkg/events); a watcher that misses an
// event because its buffer overflowed recovers via replay, not redelivery.
func (s *Server) publish(kind events.Kind, key resource.Key, commitID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(&events.Event{Kind: kind, Key: key, CommitID: commitID, Timestamp: time.Now().UTC()})
}

// ensureNamespace checks that ns exists before a namespaced write
// proceeds, implicitly materializing "default" on first use. Any other
// missing namespace is a client error: namespaces are never created
// implicitly except for the one every cluster is assumed to have.
func (s *Server) ensureNamespace(ns string) error {
	if ns == "" {
		return nil
	}
	key := resource.ClusterScoped(namespaceGVK, ns)
	_, exists, err := s.vs.Head(key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if ns != "default" {
		return apierrors.BadRequestf("namespace %q does not exist", ns)
	}

	nsObj := &resource.Namespace{
		TypeMeta: resource.TypeMeta{APIVersion: namespaceGVK.APIVersion(), Kind: namespaceGVK.Kind},
		Metadata: resource.Metadata{
			Name:              "default",
			UID:               resource.NewUID(),
			CreationTimestamp: metav1.NewTime(time.Now().UTC()),
		},
		Status: resource.NamespaceStatus{Phase: resource.NamespaceActive},
	}
	raw, err := json.Marshal(nsObj)
	if err != nil {
		return apierrors.Wrap(apierrors.Internal, err, "encode default namespace")
	}
	_, err = s.applyChange([]version.Change{{Key: key, Op: version.OpPut, NewBytes: raw}}, "bootstrap default namespace")
	if err != nil && !apierrors.Is(err, apierrors.Conflict) {
		return err
	}
	return nil
}

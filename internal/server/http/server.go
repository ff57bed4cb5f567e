// Package httpserver exposes the ConnectPro JSON API over HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/service"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// Enricher submits and polls profile enrichment jobs.
type Enricher interface {
	Submit(userID uuid.UUID, profileURL string) (uuid.UUID, error)
	Get(userID, id uuid.UUID) (model.EnrichmentJob, error)
}

// Pinger reports backend liveness for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the API.
type Deps struct {
	Auth        service.AuthService
	Connections service.ConnectionService
	Logs        service.LogService
	Tags        service.TagService
	Enrich      Enricher
	DB          Pinger // optional
}

// Options tune the router.
type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Server wires services into HTTP handlers.
type Server struct {
	auth   service.AuthService
	conns  service.ConnectionService
	logs   service.LogService
	tags   service.TagService
	enrich Enricher
	db     Pinger
	log    *zap.Logger
	now    func() time.Time
}

// New constructs a Server.
func New(d Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		auth: d.Auth, conns: d.Connections, logs: d.Logs, tags: d.Tags,
		enrich: d.Enrich, db: d.DB, log: log, now: time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler(o Options) http.Handler {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logging(s.log))
	r.Use(Recover(s.log))
	r.Use(middleware.Timeout(o.RequestTimeout))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   o.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, KindNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, KindInvalidArgument, "method not allowed")
	})

	r.Get("/healthz", s.healthz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Get("/check-email", s.checkEmail)
			r.Post("/verify", s.verify)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/me", s.me)
				r.Put("/me", s.updateMe)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Route("/connections", func(r chi.Router) {
				r.Post("/", s.createConnection)
				r.Get("/", s.listConnections)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getConnection)
					r.Put("/", s.updateConnection)
					r.Delete("/", s.deleteConnection)
					r.Get("/logs", s.listConnectionLogs)
				})
			})
			r.Route("/logs", func(r chi.Router) {
				r.Post("/", s.createLog)
				r.Get("/", s.listLogs)
				r.Get("/{id}", s.getLog)
				r.Delete("/{id}", s.deleteLog)
			})
			r.Get("/tags/{type}", s.listTags)
			r.Get("/followups", s.followUps)
			r.Post("/enrich", s.submitEnrich)
			r.Get("/tasks/{id}", s.getTask)
		})
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.log.Warn("health: db ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- request helpers ---

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", errs.ErrInvalidArgument, err)
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errs.ErrInvalidArgument, err)
	}
	return b, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	return parseUUID(chi.URLParam(r, name), name)
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errs.ErrInvalidArgument, name)
	}
	return n, nil
}

func queryPage(r *http.Request) (model.Page, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return model.Page{}, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return model.Page{}, err
	}
	return model.Page{Limit: limit, Offset: offset}, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// userID is set by requireAuth; its absence is a wiring bug.
func userID(r *http.Request) uuid.UUID {
	id, ok := UserIDFromCtx(r.Context())
	if !ok {
		panic(errors.New("httpserver: handler mounted without requireAuth"))
	}
	return id
}

// Package server exposes the query gateway over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koustreak/querygate/internal/assistant"
	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/executor"
	"github.com/koustreak/querygate/internal/filestore"
	"github.com/koustreak/querygate/internal/guard"
	"github.com/koustreak/querygate/internal/logger"
	"github.com/koustreak/querygate/internal/observability"
	"github.com/koustreak/querygate/internal/schema"
)

const maxBodyBytes = 1 << 20

// Service is the question pipeline served by the API.
type Service interface {
	Schema() *schema.Description
	MaxRows() int
	Check(ctx context.Context, sql string) (guard.Query, error)
	Run(ctx context.Context, sql string, maxRows int) (*executor.ResultSet, error)
	Ask(ctx context.Context, question string) (*assistant.Answer, error)
}

// AnswerStore reads archived answers.
type AnswerStore interface {
	Ping(ctx context.Context) error
	Exists(ctx context.Context, id string) (bool, error)
	Load(ctx context.Context, id string, v any) error
	List(ctx context.Context, limit int) ([]filestore.Entry, error)
}

type Dependencies struct {
	Logger  *logger.Logger
	Service Service
	// Answers is nil when the archive is disabled.
	Answers AnswerStore
}

// NewHandler builds the router with request-id, logging and metrics
// middleware.
func NewHandler(deps Dependencies) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logger.Global()
	}
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observability.LoggingMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(observability.MetricsMiddleware)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/schema", h.schema)
		r.Post("/validate", h.validate)
		r.Post("/query", h.query)
		r.Post("/ask", h.ask)
		r.Get("/answers", h.listAnswers)
		r.Get("/answers/{id}", h.getAnswer)
		r.Head("/answers/{id}", h.headAnswer)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no such route", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
	return r
}

type handlers struct {
	deps Dependencies
}

// health reports "degraded" when the archive is enabled but unreachable;
// questions are still answered in that state.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "service": "querygate", "archive": "disabled"}
	if h.deps.Answers != nil {
		body["archive"] = "ok"
		if err := h.deps.Answers.Ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["archive"] = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handlers) schema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Service.Schema())
}

type validateRequest struct {
	SQL string `json:"sql"`
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	SQL   string `json:"sql"`
}

func (h *handlers) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := h.deps.Service.Check(r.Context(), req.SQL)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true, SQL: q.String()})
}

type queryRequest struct {
	SQL string `json:"sql"`
	// MaxRows defaults to, and is capped at, the configured row cap.
	MaxRows *int `json:"max_rows"`
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decode(w, r, &req) {
		return
	}
	limit := h.deps.Service.MaxRows()
	if req.MaxRows != nil {
		if *req.MaxRows < 0 {
			writeErr(w, r, errs.New(errs.ErrKindInvalidInput, "max_rows must not be negative"))
			return
		}
		if *req.MaxRows < limit {
			limit = *req.MaxRows
		}
	}
	result, err := h.deps.Service.Run(r.Context(), req.SQL, limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *handlers) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decode(w, r, &req) {
		return
	}
	answer, err := h.deps.Service.Ask(r.Context(), req.Question)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *handlers) listAnswers(w http.ResponseWriter, r *http.Request) {
	if h.deps.Answers == nil {
		writeError(w, r, http.StatusNotImplemented, "ARCHIVE_DISABLED", "answer archive is not enabled", nil)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErr(w, r, errs.New(errs.ErrKindInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	entries, err := h.deps.Answers.List(r.Context(), limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": entries})
}

func (h *handlers) getAnswer(w http.ResponseWriter, r *http.Request) {
	if h.deps.Answers == nil {
		writeError(w, r, http.StatusNotImplemented, "ARCHIVE_DISABLED", "answer archive is not enabled", nil)
		return
	}
	var doc json.RawMessage
	if err := h.deps.Answers.Load(r.Context(), chi.URLParam(r, "id"), &doc); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *handlers) headAnswer(w http.ResponseWriter, r *http.Request) {
	if h.deps.Answers == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	ok, err := h.deps.Answers.Exists(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		w.WriteHeader(StatusFor(err))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "invalid request body",
			map[string]any{"details": strings.TrimSpace(err.Error())})
		return false
	}
	return true
}

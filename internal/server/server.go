// Package server exposes the engine as an HTTP sidecar: agents submit
// classified content for evaluation and resolve approvals over localhost.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mvoronin/perimeter/internal/alert"
	"github.com/mvoronin/perimeter/internal/approval"
	"github.com/mvoronin/perimeter/internal/audit"
	"github.com/mvoronin/perimeter/internal/engine"
	"github.com/mvoronin/perimeter/internal/model"
	"github.com/mvoronin/perimeter/internal/policy"
	"github.com/mvoronin/perimeter/internal/redact"
)

// Config holds sidecar configuration.
type Config struct {
	Addr           string
	PolicyPath     string
	AuditLogPath   string
	ApprovalDBPath string
	ApprovalTTL    time.Duration
	SweepInterval  time.Duration
}

// Server wires the engine behind a chi router.
type Server struct {
	cfg        Config
	repo       *policy.Repository
	workflow   *approval.Workflow
	trail      *audit.Log
	store      *approval.Store
	engine     *engine.Engine
	router     chi.Router
	httpServer *http.Server
}

// New loads the policy file, opens the stores, and builds the sidecar.
func New(cfg Config) (*Server, error) {
	file, hash, err := policy.LoadFileWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	repo := policy.NewRepository()
	if err := repo.Load(file.Rules); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	trail, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	store, err := approval.Open(cfg.ApprovalDBPath)
	if err != nil {
		trail.Close()
		return nil, fmt.Errorf("open approval store: %w", err)
	}
	dispatcher := alert.NewDispatcher(file.Alerts)
	workflow := approval.NewWorkflow(store, trail, cfg.ApprovalTTL)
	workflow.SetAlerts(dispatcher)

	s := &Server{
		cfg:      cfg,
		repo:     repo,
		workflow: workflow,
		trail:    trail,
		store:    store,
		engine: engine.New(engine.Config{
			Repository: repo,
			Approvals:  workflow,
			Trail:      trail,
			Alerts:     dispatcher,
			PolicyHash: hash,
		}),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/evaluate", s.handleEvaluate)
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", s.handleListApprovals)
			r.Post("/sweep", s.handleSweep)
			r.Get("/{id}", s.handleGetApproval)
			r.Post("/{id}/approve", s.handleApprove)
			r.Post("/{id}/reject", s.handleReject)
		})
		r.Get("/audit", s.handleAuditQuery)
		r.Post("/policy/reload", s.handleReload)
	})
	return r
}

// Serve starts the HTTP server. Blocks until ctx is cancelled, then shuts
// down gracefully. Request timeouts live here, on the transport; the
// engine itself never blocks beyond the audit write.
func (s *Server) Serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.cfg.SweepInterval > 0 {
		go s.sweepLoop(ctx)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// sweepLoop periodically expires overdue approvals. The engine exposes the
// sweep as a function of time; the server is the host that schedules it.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := s.workflow.SweepExpired(now.UTC())
			if err != nil {
				fmt.Fprintf(os.Stderr, "approval sweep failed: %v\n", err)
			} else if len(expired) > 0 {
				fmt.Fprintf(os.Stderr, "approval sweep: expired %d requests\n", len(expired))
			}
		}
	}
}

// ReloadPolicy re-reads the policy file and atomically swaps the rule set.
// On failure the previous rule set stays active.
func (s *Server) ReloadPolicy() error {
	file, hash, err := policy.LoadFileWithHash(s.cfg.PolicyPath)
	if err != nil {
		return err
	}
	if err := s.repo.Load(file.Rules); err != nil {
		return err
	}
	s.engine.SetPolicyHash(hash)
	return nil
}

// Close releases the stores.
func (s *Server) Close() error {
	err := s.trail.Close()
	if serr := s.store.Close(); err == nil {
		err = serr
	}
	return err
}

// --- Handlers ---

type evaluateRequest struct {
	Boundary        string                 `json:"boundary"`
	Payload         string                 `json:"payload"`
	Classifications []model.Classification `json:"classifications"`
}

type resolveRequest struct {
	Actor string `json:"actor"`
	Note  string `json:"note"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"policy_version": s.repo.Version(),
		"policy_hash":    s.engine.PolicyHash(),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	decision, err := s.engine.Evaluate(model.ClassifiedContent{
		Boundary:        model.Boundary(req.Boundary),
		Payload:         req.Payload,
		Classifications: req.Classifications,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := s.workflow.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	state := approval.State(r.URL.Query().Get("state"))
	if state == "" {
		state = approval.StatePending
	}
	reqs, err := s.store.List(state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": reqs})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleResolve(w, r, s.workflow.Approve)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleResolve(w, r, s.workflow.Reject)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, resolve func(id, actor, note string) (*approval.Request, error)) {
	var body resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if body.Actor == "" {
		writeError(w, http.StatusBadRequest, errors.New("actor is required"))
		return
	}

	req, err := resolve(chi.URLParam(r, "id"), body.Actor, body.Note)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	expired, err := s.workflow.SweepExpired(time.Now().UTC())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": expired})
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Boundary: q.Get("boundary"),
		Action:   q.Get("action"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		filter.Limit = n
	}
	for name, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		if v := q.Get(name); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s %q", name, v))
				return
			}
			*dst = ts
		}
	}

	recs, err := s.trail.Query(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.ReloadPolicy(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policy_version": s.repo.Version(),
		"policy_hash":    s.engine.PolicyHash(),
	})
}

func statusFor(err error) int {
	var cfgErr *policy.ConfigError
	switch {
	case errors.Is(err, engine.ErrInvalidBoundary),
		errors.Is(err, redact.ErrOverlappingSpan),
		errors.Is(err, redact.ErrInvalidSpan),
		errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.Is(err, approval.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, approval.ErrAlreadyResolved):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

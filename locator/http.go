package locator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/uianchor/container"
	"github.com/hazyhaar/uianchor/device"
	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/observability"
	"github.com/hazyhaar/uianchor/recovery"
	"github.com/hazyhaar/uianchor/shield"
	"github.com/hazyhaar/uianchor/snapshot"
)

// Handler returns the HTTP API:
//
//	GET  /healthz
//	POST /v1/index      {dump}
//	POST /v1/match      {dump, anchor}
//	POST /v1/container  {dump, hint}
//	POST /v1/normalize  {dump, bounds}
//	POST /v1/gate       {dump?, selector, confidence}
//	POST /v1/execute    ExecRequest
//	POST /v1/recover    {params, dump}
//	GET  /v1/audit?status=&anchor_key=&since=&limit=&offset=
//	GET  /v1/stats?since=
func (l *Locator) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack(l.logger) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/index", l.handleIndex)
		r.Post("/match", l.handleMatch)
		r.Post("/container", l.handleContainer)
		r.Post("/normalize", l.handleNormalize)
		r.Post("/gate", l.handleGate)
		r.Post("/execute", l.handleExecute)
		r.Post("/recover", l.handleRecover)
		r.Get("/audit", l.handleAudit)
		r.Get("/stats", l.handleStats)
	})
	return r
}

func (l *Locator) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dump string `json:"dump"`
	}
	if !decode(w, r, &req) {
		return
	}
	s, err := l.Index(req.Dump)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_hash": s.Hash(),
		"nodes":         s.Len(),
		"screen":        s.Screen(),
	})
}

func (l *Locator) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dump   string       `json:"dump"`
		Anchor match.Anchor `json:"anchor"`
	}
	if !decode(w, r, &req) {
		return
	}
	rep, err := l.Match(r.Context(), req.Dump, req.Anchor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (l *Locator) handleContainer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dump string          `json:"dump"`
		Hint json.RawMessage `json:"hint"`
	}
	if !decode(w, r, &req) {
		return
	}
	h, err := container.ParseHint(req.Hint)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := l.MatchContainer(r.Context(), req.Dump, h)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (l *Locator) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dump   string `json:"dump"`
		Bounds string `json:"bounds"`
	}
	if !decode(w, r, &req) {
		return
	}
	clicked, err := geom.ParseRect(req.Bounds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := l.Normalize(r.Context(), req.Dump, clicked)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (l *Locator) handleGate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dump       string   `json:"dump"`
		Selector   string   `json:"selector"`
		Confidence *float64 `json:"confidence"`
	}
	if !decode(w, r, &req) {
		return
	}
	conf := 1.0
	if req.Confidence != nil {
		conf = *req.Confidence
	}
	if req.Dump == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"selector":    req.Selector,
			"quick_check": l.QuickCheck(req.Selector, conf),
		})
		return
	}
	v, err := l.Gate(r.Context(), req.Dump, req.Selector, conf)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (l *Locator) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecRequest
	if !decode(w, r, &req) {
		return
	}
	res := l.Execute(r.Context(), req)
	code := http.StatusOK
	switch {
	case errors.Is(res.Err, ErrNoDevice):
		code = http.StatusServiceUnavailable
	case errorAs[*device.CircuitOpenError](res.Err):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

func (l *Locator) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Params json.RawMessage `json:"params"`
		Dump   string          `json:"dump"`
	}
	if !decode(w, r, &req) {
		return
	}
	out, err := l.Recover(r.Context(), req.Params, req.Dump)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (l *Locator) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := observability.AuditFilter{
		Status:    q.Get("status"),
		AnchorKey: q.Get("anchor_key"),
		Limit:     queryInt(r, "limit", 50),
		Offset:    queryInt(r, "offset", 0),
	}
	since, err := querySince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f.Since = since
	recs, err := l.Audit(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if recs == nil {
		recs = []observability.ExecRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": recs})
}

func (l *Locator) handleStats(w http.ResponseWriter, r *http.Request) {
	since, err := querySince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, err := l.Stats(r.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errorAs[*snapshot.ParseError](err), errorAs[*geom.BoundsError](err):
		return http.StatusUnprocessableEntity
	case errorAs[*snapshot.SelectorError](err), errors.Is(err, recovery.ErrNoOriginal):
		return http.StatusBadRequest
	case errors.Is(err, recovery.ErrTargetNotFound),
		errors.Is(err, container.ErrNoNode),
		errors.Is(err, container.ErrNoContainer),
		errors.Is(err, container.ErrNoCardRoot):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func errorAs[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		code := http.StatusBadRequest
		if errorAs[*http.MaxBytesError](err) {
			code = http.StatusRequestEntityTooLarge
		}
		writeError(w, code, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// querySince accepts RFC 3339 or a Go duration meaning "that long ago".
func querySince(r *http.Request) (time.Time, error) {
	s := r.URL.Query().Get("since")
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("since: want RFC 3339 or a duration, got %q", s)
	}
	return t, nil
}

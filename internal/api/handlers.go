package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/engine"
	"github.com/openwitness/chronicle/internal/query"
	"github.com/openwitness/chronicle/internal/repository"
)

const sessionHeader = "X-Session-ID"
const fingerprintHeader = "X-Fingerprint"

// Handlers exposes the record store, the consensus workflow and the query
// projections over JSON.
type Handlers struct {
	engine  *engine.Engine
	queries *query.Service
	store   repository.Store
	metrics *Metrics
}

func NewHandlers(eng *engine.Engine, queries *query.Service, store repository.Store, metrics *Metrics) *Handlers {
	return &Handlers{engine: eng, queries: queries, store: store, metrics: metrics}
}

// Register mounts every route on mux. The kind collections are registered as
// literal segments so no pattern overlaps /api/sessions or /api/proposals; a
// wildcard {kind} segment would make the route set ambiguous and ServeMux
// rejects ambiguous patterns at registration.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.handleUpsertSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/can-contribute", h.handleCanContribute)
	mux.HandleFunc("POST /api/sessions/{id}/contributions", h.handleRecordContribution)
	mux.HandleFunc("GET /api/sessions/{id}/audit", h.handleSessionAudit)

	mux.HandleFunc("POST /api/proposals", h.handlePropose)
	mux.HandleFunc("GET /api/proposals", h.handleListProposals)
	mux.HandleFunc("GET /api/proposals/{id}", h.handleGetProposal)
	mux.HandleFunc("POST /api/proposals/{id}/verify", h.handleVerify)
	mux.HandleFunc("POST /api/proposals/{id}/reject", h.handleReject)

	for _, kind := range domain.Kinds() {
		base := "/api/" + string(kind)
		mux.HandleFunc("POST "+base, h.handleCreateRecord(kind))
		mux.HandleFunc("GET "+base, h.handleListRecords(kind))
		mux.HandleFunc("GET "+base+"/map", h.handleRegionMap(kind))
		mux.HandleFunc("GET "+base+"/export", h.handleExport(kind))
		mux.HandleFunc("GET "+base+"/{id}", h.handleGetRecord(kind))
		mux.HandleFunc("GET "+base+"/{id}/history", h.handleGetHistory(kind))
	}

	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// actorFrom builds the audit identity for a request. The client IP is never
// stored raw, only a sha256 digest.
func actorFrom(r *http.Request) domain.Actor {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	sum := sha256.Sum256([]byte(host))
	return domain.Actor{
		SessionID: r.Header.Get(sessionHeader),
		IPHash:    hex.EncodeToString(sum[:]),
		UserAgent: r.UserAgent(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		rateErr       *domain.RateLimitError
		conflictErr   *domain.ConflictError
		stateErr      *domain.InvalidStateError
		dupErr        *domain.DuplicateVerificationError
	)
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &rateErr):
		h.metrics.RateLimited.Inc()
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &stateErr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &dupErr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		log.Printf("[HTTP] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: name, Message: "must be a valid uuid"}
	}
	return id, nil
}

// --- sessions ---

type upsertSessionRequest struct {
	SessionID   string `json:"session_id"`
	Fingerprint string `json:"fingerprint"`
}

func (h *Handlers) handleUpsertSession(w http.ResponseWriter, r *http.Request) {
	var req upsertSessionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.SessionID == "" {
		h.writeError(w, &domain.ValidationError{Field: "session_id", Message: "is required"})
		return
	}
	actor := actorFrom(r)
	session, err := h.engine.UpsertSession(r.Context(), req.SessionID, req.Fingerprint, actor.IPHash)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) handleCanContribute(w http.ResponseWriter, r *http.Request) {
	ok, err := h.engine.CanContribute(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"can_contribute": ok})
}

func (h *Handlers) handleRecordContribution(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RecordContribution(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

func (h *Handlers) handleSessionAudit(w http.ResponseWriter, r *http.Request) {
	limit := intQueryParam(r, "limit", 100)
	entries, err := h.store.Audit().ListBySession(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// --- records ---

type createRecordRequest struct {
	Fields map[string]any `json:"fields"`
	Reason string         `json:"reason"`
}

func (h *Handlers) handleCreateRecord(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRecordRequest
		if err := decodeBody(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		actor := actorFrom(r)
		record, err := h.engine.CreateRecord(r.Context(), kind, req.Fields, actor, req.Reason)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, record)
	}
}

func (h *Handlers) handleListRecords(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := intQueryParam(r, "page", 1)
		result, err := h.queries.ListCurrentPaginated(r.Context(), kind, page, r.URL.Query().Get("q"))
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handlers) handleGetRecord(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			h.writeError(w, err)
			return
		}
		record, err := h.engine.ResolveCurrent(r.Context(), id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if record == nil || record.Kind != kind {
			h.writeError(w, &domain.NotFoundError{Resource: "record", ID: id.String()})
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

func (h *Handlers) handleGetHistory(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			h.writeError(w, err)
			return
		}
		history, err := h.engine.GetHistory(r.Context(), id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if history.Current.Kind != kind {
			h.writeError(w, &domain.NotFoundError{Resource: "record", ID: id.String()})
			return
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func (h *Handlers) handleRegionMap(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := h.queries.AggregateByRegion(r.Context(), kind)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"regions": counts})
	}
}

func (h *Handlers) handleExport(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, err := h.queries.ExportCurrent(r.Context(), kind)
		if err != nil {
			h.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s.xlsx", kind, time.Now().Format("2006-01-02")))
		if err := file.Write(w); err != nil {
			log.Printf("[HTTP] failed to stream export: %v", err)
		}
	}
}

// --- proposals ---

type proposeRequest struct {
	TargetKind string         `json:"target_kind"`
	TargetID   string         `json:"target_id"`
	Changes    map[string]any `json:"changes"`
	Reason     string         `json:"reason"`
}

func (h *Handlers) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		h.writeError(w, &domain.ValidationError{Field: "target_id", Message: "must be a valid uuid"})
		return
	}
	actor := actorFrom(r)
	proposal, err := h.engine.Propose(r.Context(), domain.Kind(req.TargetKind), targetID, req.Changes, req.Reason, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.ProposalsOpened.Inc()
	writeJSON(w, http.StatusCreated, proposal)
}

func (h *Handlers) handleListProposals(w http.ResponseWriter, r *http.Request) {
	status := domain.ProposalStatusPending
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := domain.ParseProposalStatus(raw)
		if !ok {
			h.writeError(w, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", raw)})
			return
		}
		status = parsed
	}
	page := intQueryParam(r, "page", 1)
	proposals, err := h.engine.ListProposals(r.Context(), status, page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}

func (h *Handlers) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	proposal, err := h.engine.GetProposal(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func (h *Handlers) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	proposal, err := h.engine.Verify(r.Context(), id, actorFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.Verifications.Inc()
	if proposal.Status == domain.ProposalStatusApproved {
		h.metrics.ProposalsApproved.Inc()
	}
	writeJSON(w, http.StatusOK, proposal)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req rejectRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	proposal, err := h.engine.Reject(r.Context(), id, req.Reason, actorFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.ProposalsRejected.Inc()
	writeJSON(w, http.StatusOK, proposal)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func intQueryParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

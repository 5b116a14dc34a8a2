package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/engine"
	"github.com/openwitness/chronicle/internal/query"
	"github.com/openwitness/chronicle/internal/repository/memory"
)

type testServer struct {
	handler http.Handler
	engine  *engine.Engine
	store   *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	eng := engine.New(store, engine.DefaultConfig())
	queries := query.NewService(store, domain.DefaultRegions(), engine.DefaultConfig().PageSize)
	metrics := NewMetrics(prometheus.NewRegistry())
	handlers := NewHandlers(eng, queries, store, metrics)
	return &testServer{
		handler: NewRouter(handlers, metrics, []string{"*"}),
		engine:  eng,
		store:   store,
	}
}

func (ts *testServer) do(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.9:51234"
	req.Header.Set("User-Agent", "chronicle-test")
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) registerSession(t *testing.T, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions", "", map[string]string{
		"session_id":  id,
		"fingerprint": "fp-" + id,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register session %s: status %d body %s", id, rec.Code, rec.Body.String())
	}
}

func (ts *testServer) setTrust(t *testing.T, id string, trust int) {
	t.Helper()
	sess, err := ts.store.Sessions().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	sess.TrustScore = trust
	if err := ts.store.Sessions().Update(context.Background(), sess); err != nil {
		t.Fatalf("set trust: %v", err)
	}
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.registerSession(t, "alice")

	rec := ts.do(t, http.MethodGet, "/api/sessions/alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status %d", rec.Code)
	}
	var sess domain.Session
	decodeInto(t, rec, &sess)
	if sess.TrustScore != domain.TrustInitial {
		t.Fatalf("trust = %d, want %d", sess.TrustScore, domain.TrustInitial)
	}

	rec = ts.do(t, http.MethodGet, "/api/sessions/alice/can-contribute", "", nil)
	var gate map[string]bool
	decodeInto(t, rec, &gate)
	if !gate["can_contribute"] {
		t.Fatalf("fresh session should be allowed to contribute")
	}

	rec = ts.do(t, http.MethodGet, "/api/sessions/ghost", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status %d, want 404", rec.Code)
	}
}

func TestCreateAndFetchRecord(t *testing.T) {
	ts := newTestServer(t)
	ts.registerSession(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/perpetrators", "alice", map[string]any{
		"fields": map[string]any{
			"name":   "Cmdr Example",
			"status": "active",
			"region": "capital",
		},
		"reason": "initial documentation",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var created domain.RecordVersion
	decodeInto(t, rec, &created)
	if !created.CurrentVersion {
		t.Fatalf("created record should be the current version")
	}

	rec = ts.do(t, http.MethodGet, "/api/perpetrators/"+created.ID.String(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}

	// The same id under another collection must not resolve.
	rec = ts.do(t, http.MethodGet, "/api/victims/"+created.ID.String(), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-kind get: status %d, want 404", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/perpetrators?q=example", "", nil)
	var page query.Page
	decodeInto(t, rec, &page)
	if page.TotalCount != 1 || len(page.Items) != 1 {
		t.Fatalf("search: total %d items %d, want 1/1", page.TotalCount, len(page.Items))
	}
}

func TestCreateValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.registerSession(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/victims", "alice", map[string]any{
		"fields": map[string]any{"name": "nameless"},
		"reason": "r",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing required field: status %d, want 400", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/ufo-sightings", "alice", map[string]any{
		"fields": map[string]any{"name": "x"},
		"reason": "r",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown collection: status %d, want 404", rec.Code)
	}
}

func TestProposalQuorumFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.registerSession(t, "author")
	ts.registerSession(t, "proposer")
	ts.registerSession(t, "voter-1")
	ts.registerSession(t, "voter-2")
	ts.setTrust(t, "proposer", 85)

	rec := ts.do(t, http.MethodPost, "/api/perpetrators", "author", map[string]any{
		"fields": map[string]any{"name": "Cmdr Example", "status": "active"},
		"reason": "initial documentation",
	})
	var created domain.RecordVersion
	decodeInto(t, rec, &created)

	rec = ts.do(t, http.MethodPost, "/api/proposals", "proposer", map[string]any{
		"target_kind": "perpetrators",
		"target_id":   created.ID.String(),
		"changes":     map[string]any{"status": "arrested"},
		"reason":      "court filing published",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("propose: status %d body %s", rec.Code, rec.Body.String())
	}
	var proposal domain.Proposal
	decodeInto(t, rec, &proposal)
	if proposal.RequiredVerifications != 2 {
		t.Fatalf("quorum = %d, want 2 for trust 85", proposal.RequiredVerifications)
	}

	verifyPath := "/api/proposals/" + proposal.ID.String() + "/verify"
	rec = ts.do(t, http.MethodPost, verifyPath, "voter-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first verify: status %d body %s", rec.Code, rec.Body.String())
	}

	// Same voter again must be refused without advancing the count.
	rec = ts.do(t, http.MethodPost, verifyPath, "voter-1", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate verify: status %d, want 409", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, verifyPath, "voter-2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second verify: status %d body %s", rec.Code, rec.Body.String())
	}
	decodeInto(t, rec, &proposal)
	if proposal.Status != domain.ProposalStatusApproved {
		t.Fatalf("status = %s, want approved", proposal.Status)
	}

	// The change landed as a new current version.
	rec = ts.do(t, http.MethodGet, "/api/perpetrators/"+created.ID.String(), "", nil)
	var current domain.RecordVersion
	decodeInto(t, rec, &current)
	if current.ID == created.ID {
		t.Fatalf("record was not superseded")
	}
	if current.Fields["status"] != "arrested" {
		t.Fatalf("status = %v, want arrested", current.Fields["status"])
	}

	rec = ts.do(t, http.MethodGet, "/api/perpetrators/"+created.ID.String()+"/history", "", nil)
	var history domain.RecordHistory
	decodeInto(t, rec, &history)
	if len(history.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(history.History))
	}
}

func TestProposalConflictMapsTo409(t *testing.T) {
	ts := newTestServer(t)
	ts.registerSession(t, "author")
	ts.registerSession(t, "first")
	ts.registerSession(t, "second")

	rec := ts.do(t, http.MethodPost, "/api/incidents", "author", map[string]any{
		"fields": map[string]any{"title": "checkpoint raid", "incident_type": "arrest_raid"},
		"reason": "initial documentation",
	})
	var created domain.RecordVersion
	decodeInto(t, rec, &created)

	propose := func(session string) *httptest.ResponseRecorder {
		return ts.do(t, http.MethodPost, "/api/proposals", session, map[string]any{
			"target_kind": "incidents",
			"target_id":   created.ID.String(),
			"changes":     map[string]any{"casualties": 3},
			"reason":      "hospital report",
		})
	}
	if rec := propose("first"); rec.Code != http.StatusCreated {
		t.Fatalf("first proposal: status %d", rec.Code)
	}
	if rec := propose("second"); rec.Code != http.StatusConflict {
		t.Fatalf("overlapping proposal: status %d, want 409", rec.Code)
	}
}

func TestRejectProposal(t *testing.T) {
	ts := newTestServer(t)
	ts.registerSession(t, "author")
	ts.registerSession(t, "proposer")
	ts.registerSession(t, "moderator")

	rec := ts.do(t, http.MethodPost, "/api/victims", "author", map[string]any{
		"fields": map[string]any{"name": "A. Citizen", "status": "detained"},
		"reason": "initial documentation",
	})
	var created domain.RecordVersion
	decodeInto(t, rec, &created)

	rec = ts.do(t, http.MethodPost, "/api/proposals", "proposer", map[string]any{
		"target_kind": "victims",
		"target_id":   created.ID.String(),
		"changes":     map[string]any{"status": "released"},
		"reason":      "unverified rumor",
	})
	var proposal domain.Proposal
	decodeInto(t, rec, &proposal)

	rec = ts.do(t, http.MethodPost, "/api/proposals/"+proposal.ID.String()+"/reject", "moderator", map[string]any{
		"reason": "no supporting source",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: status %d body %s", rec.Code, rec.Body.String())
	}
	decodeInto(t, rec, &proposal)
	if proposal.Status != domain.ProposalStatusRejected {
		t.Fatalf("status = %s, want rejected", proposal.Status)
	}

	// Rejecting again is a state error.
	rec = ts.do(t, http.MethodPost, "/api/proposals/"+proposal.ID.String()+"/reject", "moderator", map[string]any{
		"reason": "still nothing",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("double reject: status %d, want 409", rec.Code)
	}
}

func TestBootstrapRateLimitMapsTo429(t *testing.T) {
	ts := newTestServer(t)
	ts.registerSession(t, "eager")

	limit := engine.DefaultConfig().BootstrapLimit
	for i := 0; i < limit; i++ {
		rec := ts.do(t, http.MethodPost, "/api/sessions/eager/contributions", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("contribution %d: status %d body %s", i+1, rec.Code, rec.Body.String())
		}
	}
	rec := ts.do(t, http.MethodPost, "/api/sessions/eager/contributions", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit contribution: status %d, want 429", rec.Code)
	}
}

func TestRegionMapAggregation(t *testing.T) {
	ts := newTestServer(t)
	ts.registerSession(t, "author")

	for i, region := range []string{"capital", "capital", "north"} {
		rec := ts.do(t, http.MethodPost, "/api/incidents", "author", map[string]any{
			"fields": map[string]any{
				"title":         fmt.Sprintf("incident %d", i),
				"incident_type": "other",
				"region":        region,
			},
			"reason": "initial documentation",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d: status %d body %s", i, rec.Code, rec.Body.String())
		}
	}

	// Data that predates the region enumeration buckets as unknown.
	legacy := domain.NewRecordVersion(domain.KindIncident, map[string]any{
		"title":         "legacy incident",
		"incident_type": "other",
		"region":        "atlantis",
	}, "importer")
	if err := ts.store.Records().Insert(context.Background(), legacy); err != nil {
		t.Fatalf("seed legacy record: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/api/incidents/map", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("map: status %d", rec.Code)
	}
	var payload struct {
		Regions []query.RegionCount `json:"regions"`
	}
	decodeInto(t, rec, &payload)

	counts := make(map[string]int, len(payload.Regions))
	for _, rc := range payload.Regions {
		counts[rc.Region] = rc.Count
	}
	if counts["capital"] != 2 {
		t.Fatalf("capital = %d, want 2", counts["capital"])
	}
	if counts[domain.RegionUnknown] != 1 {
		t.Fatalf("unknown = %d, want 1 for unrecognized region", counts[domain.RegionUnknown])
	}
}

func TestExportReturnsSpreadsheet(t *testing.T) {
	ts := newTestServer(t)
	ts.registerSession(t, "author")

	rec := ts.do(t, http.MethodPost, "/api/victims", "author", map[string]any{
		"fields": map[string]any{"name": "A. Citizen", "status": "missing"},
		"reason": "initial documentation",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/victims/export", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("export body is empty")
	}
}

func TestRoutingCoversAllKindsUnambiguously(t *testing.T) {
	// Building the router registers the full route set; an ambiguous pattern
	// pair would panic inside NewRouter before any request is served.
	ts := newTestServer(t)

	for _, kind := range domain.Kinds() {
		for _, path := range []string{
			"/api/" + string(kind),
			"/api/" + string(kind) + "/map",
			"/api/" + string(kind) + "/export",
		} {
			rec := ts.do(t, http.MethodGet, path, "", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("GET %s: status %d body %s", path, rec.Code, rec.Body.String())
			}
		}
	}

	// A path like /api/sessions/map must stay a session lookup, never a
	// collection route.
	rec := ts.do(t, http.MethodGet, "/api/sessions/map", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /api/sessions/map: status %d, want 404", rec.Code)
	}
	var resp errorResponse
	decodeInto(t, rec, &resp)
	if !strings.Contains(resp.Error, "session") {
		t.Fatalf("expected a session lookup failure, got %q", resp.Error)
	}
}

func TestListProposalsRejectsUnknownStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/proposals?status=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: status %d, want 400", rec.Code)
	}

	for _, status := range []string{"pending", "approved", "rejected", "expired"} {
		rec := ts.do(t, http.MethodGet, "/api/proposals?status="+status, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %s: status %d body %s", status, rec.Code, rec.Body.String())
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
}

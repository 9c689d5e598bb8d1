package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/service/awards"
	"github.com/jmehdipour/staffing-awards/internal/syncer"
	"github.com/jmehdipour/staffing-awards/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAwards struct {
	err        error
	gotLiveURL string
	gotInput   awards.NominationInput
}

func (f *fakeAwards) SubmitNomination(_ context.Context, in awards.NominationInput) (*model.Nomination, error) {
	f.gotInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &model.Nomination{ID: "nom-1", State: model.NominationSubmittedState}, nil
}

func (f *fakeAwards) ApproveNomination(_ context.Context, id, liveURL string) (*model.Nomination, error) {
	f.gotLiveURL = liveURL
	if f.err != nil {
		return nil, f.err
	}
	if liveURL == "" {
		liveURL = "https://worldstaffingawards.com/nominee/" + id
	}
	return &model.Nomination{ID: id, State: model.NominationApprovedState, LiveURL: &liveURL}, nil
}

func (f *fakeAwards) UpdateLiveURL(_ context.Context, id, liveURL string) (*model.Nomination, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Nomination{ID: id, State: model.NominationApprovedState, LiveURL: &liveURL}, nil
}

func (f *fakeAwards) CastVote(context.Context, awards.VoteInput) (*model.Vote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Vote{ID: "vote-1"}, nil
}

type fakeAttempts struct {
	gotOutcome string
	gotLimit   int
}

func (f *fakeAttempts) InsertBatch(context.Context, []model.SyncAttempt) error { return nil }

func (f *fakeAttempts) ListByTarget(_ context.Context, target model.Target, outcome, _ string, limit, _ int) ([]model.SyncAttempt, error) {
	f.gotOutcome, f.gotLimit = outcome, limit
	return []model.SyncAttempt{{EventID: "e1", Target: target.String(), Outcome: model.AttemptOK}}, nil
}

// brokenOutbox fails every claim, like an unreachable database.
type brokenOutbox struct{ *testutil.MemoryOutbox }

func (brokenOutbox) ClaimBatch(context.Context, int) ([]model.OutboxEvent, error) {
	return nil, errors.New("dial tcp 127.0.0.1:3306: connection refused")
}

type env struct {
	srv      *Server
	awards   *fakeAwards
	attempts *fakeAttempts
	hubspot  *testutil.MemoryOutbox
	loops    *testutil.MemoryOutbox
	fake     *testutil.FakeAdapter
}

// newEnv enables hubspot only; loops has an outbox but no runner.
func newEnv(t *testing.T, mutate ...func(*Deps)) *env {
	t.Helper()
	e := &env{
		awards:   &fakeAwards{},
		attempts: &fakeAttempts{},
		hubspot:  testutil.NewMemoryOutbox(model.TargetHubSpot, 3),
		loops:    testutil.NewMemoryOutbox(model.TargetLoops, 3),
		fake:     testutil.NewFakeAdapter(model.TargetHubSpot),
	}

	var cfg config.Config
	cfg.Sync.Secret = "cron-secret"
	cfg.Admin.APIKeys = []string{"admin-key"}

	d := Deps{
		Config: cfg,
		Log:    zap.NewNop(),
		Awards: e.awards,
		Outboxes: map[model.Target]repository.OutboxRepository{
			model.TargetHubSpot: e.hubspot,
			model.TargetLoops:   e.loops,
		},
		Runners: map[model.Target]*syncer.Runner{
			model.TargetHubSpot: syncer.NewRunner(e.hubspot, e.fake, nil, zap.NewNop(), syncer.Options{Year: "2026"}),
		},
		Attempts: e.attempts,
	}
	for _, m := range mutate {
		m(&d)
	}
	e.srv = NewServer(d)
	return e
}

func (e *env) do(method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

var cronAuth = []string{"Authorization", "Bearer cron-secret"}
var adminAuth = []string{"X-API-Key", "admin-key"}

func enqueueSubmitted(t *testing.T, ob *testutil.MemoryOutbox, email string) string {
	t.Helper()
	id, err := ob.Enqueue(context.Background(), nil, model.NominationSubmitted{
		Nominator: model.Contact{Email: email, Firstname: "N"},
	})
	require.NoError(t, err)
	return id
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec, _ := e.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestSyncRun(t *testing.T) {
	e := newEnv(t)
	enqueueSubmitted(t, e.hubspot, "a@example.com")
	enqueueSubmitted(t, e.hubspot, "b@example.com")

	rec, _ := e.do(http.MethodPost, "/api/sync/hubspot", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = e.do(http.MethodPost, "/api/sync/hubspot", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := e.do(http.MethodPost, "/api/sync/hubspot", "", cronAuth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hubspot sync complete", body["message"])
	assert.EqualValues(t, 2, body["processed"])
	assert.EqualValues(t, 0, body["errors"])
	assert.EqualValues(t, 2, body["total"])
	assert.Equal(t, 2, e.fake.ContactCount())
}

func TestSyncRun_UnknownOrDisabledTarget(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(http.MethodPost, "/api/sync/salesforce", "", cronAuth...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := e.do(http.MethodPost, "/api/sync/loops", "", cronAuth...)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "target disabled", body["error"])
}

func TestSyncRun_StoreUnreachable(t *testing.T) {
	broken := brokenOutbox{testutil.NewMemoryOutbox(model.TargetHubSpot, 3)}
	e := newEnv(t, func(d *Deps) {
		d.Runners[model.TargetHubSpot] = syncer.NewRunner(broken, testutil.NewFakeAdapter(model.TargetHubSpot), nil, nil, syncer.Options{})
	})

	rec, body := e.do(http.MethodPost, "/api/sync/hubspot", "", cronAuth...)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "sync failed", body["error"])
	assert.Contains(t, body["details"], "connection refused")
}

func TestSyncStatus(t *testing.T) {
	e := newEnv(t)
	enqueueSubmitted(t, e.loops, "a@example.com")

	rec, body := e.do(http.MethodGet, "/api/sync/hubspot", "", cronAuth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, "closed", body["health"])

	rec, body = e.do(http.MethodGet, "/api/sync/loops", "", cronAuth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["enabled"])
	assert.Equal(t, "disabled", body["health"])
	counts := body["counts"].(map[string]any)
	assert.EqualValues(t, 1, counts["pending"])
	assert.EqualValues(t, 0, counts["dead"])

	rec, _ = e.do(http.MethodGet, "/api/sync/loops", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitNomination(t *testing.T) {
	e := newEnv(t)
	body := `{"subcategoryId":"top-recruiter","nominator":{"email":"nina@example.com","firstname":"Nina","jobTitle":"CEO"},
		"nominee":{"type":"company","companyName":"Acme","companyWebsite":"https://acme.com"}}`

	rec, out := e.do(http.MethodPost, "/v1/nominations", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "nom-1", out["id"])
	assert.Equal(t, "submitted", out["state"])
	assert.Equal(t, "CEO", e.awards.gotInput.Nominator.JobTitle)
	assert.Equal(t, model.NomineeCompany, e.awards.gotInput.Nominee.Type)
	assert.Equal(t, "https://acme.com", e.awards.gotInput.Nominee.CompanyWebsite)

	rec, _ = e.do(http.MethodPost, "/v1/nominations", `{"subcategoryId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{awards.ErrInvalidInput, http.StatusBadRequest},
		{awards.ErrUnknownSubcategory, http.StatusBadRequest},
		{awards.ErrNominationNotFound, http.StatusNotFound},
		{awards.ErrAlreadyVoted, http.StatusConflict},
		{awards.ErrNotApproved, http.StatusUnprocessableEntity},
		{errors.New("deadlock found"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			e := newEnv(t)
			e.awards.err = tc.err
			rec, _ := e.do(http.MethodPost, "/v1/votes", `{"nominationId":"n1","voter":{"email":"v@example.com"}}`)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	e := newEnv(t)
	rec, out := e.do(http.MethodPost, "/v1/votes", `{"nominationId":"n1","voter":{"email":"v@example.com"}}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "vote-1", out["id"])
}

func TestApproveNomination(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(http.MethodPost, "/v1/admin/nominations/n1/approve", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, out := e.do(http.MethodPost, "/v1/admin/nominations/n1/approve", "", adminAuth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", e.awards.gotLiveURL)
	assert.Equal(t, "approved", out["state"])
	assert.Equal(t, "https://worldstaffingawards.com/nominee/n1", out["live_url"])

	rec, out = e.do(http.MethodPost, "/v1/admin/nominations/n1/approve", `{"live_url":"https://example.com/n1"}`, adminAuth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com/n1", out["live_url"])

	e.awards.err = awards.ErrInvalidState
	rec, _ = e.do(http.MethodPost, "/v1/admin/nominations/n1/approve", "", adminAuth...)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateLiveURL(t *testing.T) {
	e := newEnv(t)
	rec, out := e.do(http.MethodPut, "/v1/admin/nominations/n1/live-url", `{"live_url":"https://example.com/x"}`, adminAuth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com/x", out["live_url"])
}

func TestReplay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	dead := enqueueSubmitted(t, e.loops, "a@example.com")
	_, err := e.loops.ClaimByID(ctx, dead)
	require.NoError(t, err)
	_, err = e.loops.MarkFailed(ctx, dead, "400 bad request", true)
	require.NoError(t, err)
	pending := enqueueSubmitted(t, e.loops, "b@example.com")

	rec, out := e.do(http.MethodPost, "/v1/admin/outbox/loops/"+dead+"/replay", "", adminAuth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", out["status"])
	row, err := e.loops.Get(ctx, dead)
	require.NoError(t, err)
	assert.Equal(t, model.OutboxPending, row.Status)
	assert.Equal(t, 1, row.AttemptCount)

	rec, _ = e.do(http.MethodPost, "/v1/admin/outbox/loops/"+pending+"/replay", "", adminAuth...)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = e.do(http.MethodPost, "/v1/admin/outbox/loops/missing/replay", "", adminAuth...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(http.MethodPost, "/v1/admin/outbox/pipedrive/"+dead+"/replay", "", adminAuth...)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAttempts(t *testing.T) {
	e := newEnv(t)
	rec, out := e.do(http.MethodGet, "/v1/admin/sync/hubspot/attempts?outcome=ok&limit=5000", "", adminAuth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, out["count"])
	assert.Equal(t, "ok", e.attempts.gotOutcome)
	assert.Equal(t, 50, e.attempts.gotLimit)

	_, _ = e.do(http.MethodGet, "/v1/admin/sync/hubspot/attempts?outcome=bogus", "", adminAuth...)
	assert.Equal(t, "", e.attempts.gotOutcome)

	noCH := newEnv(t, func(d *Deps) { d.Attempts = nil })
	rec, _ = noCH.do(http.MethodGet, "/v1/admin/sync/hubspot/attempts", "", adminAuth...)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

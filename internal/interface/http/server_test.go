package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/application/command"
	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/application/query"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/external/auth"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/external/storage"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/memory"
	"github.com/superheroes-club/luz-engine/internal/interface/http/handlers"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

const testSecret = "test-secret-that-is-at-least-32-bytes!"

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	t        *testing.T
	srv      *httptest.Server
	verifier *auth.Verifier
	store    *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.NewStore()
	clock := shared.FixedClock{T: testNow}
	log := logger.Nop()
	ledger := progression.NewAccountLedger(clock)
	tracker := progression.NewTracker(clock)
	archangels := []string{"rafael", "gabriel"}

	verifier, err := auth.NewVerifier(auth.Config{Secret: testSecret, Issuer: "luz-test"})
	require.NoError(t, err)

	_, err = command.NewSeedCatalogHandler(st, clock, log).Handle(context.Background(), command.DefaultCatalog())
	require.NoError(t, err)

	deps := Dependencies{
		RegisterChild:      command.NewRegisterChildHandler(st, archangels, shared.NewSeededRandom(7), nil, clock, log),
		UpdateChildProfile: command.NewUpdateChildProfileHandler(st, clock, log),
		DeleteChild:        command.NewDeleteChildHandler(st, log),
		CompleteInitiation: command.NewCompleteInitiationHandler(st, ledger, archangels, command.DefaultWelcomeBonus, nil, clock, log),
		UpdateSafety:       command.NewUpdateSafetySettingsHandler(st, clock, log),
		ResetSafety:        command.NewResetSafetySettingsHandler(st, clock, log),
		PublishMission:     command.NewPublishMissionHandler(st, clock, log),
		StartMission:       command.NewStartMissionHandler(st, tracker, log),
		SubmitChallenge:    command.NewSubmitChallengeHandler(st, nil, clock, log),
		ReviewSubmission:   command.NewReviewSubmissionHandler(st, ledger, tracker, nil, clock, log, false),
		RedeemReward:       command.NewRedeemRewardHandler(st, ledger, nil, clock, log),
		AwardReward:        command.NewAwardRewardHandler(st, nil, clock, log),
		UploadProof:        command.NewUploadProofHandler(storage.NewMemoryStore(), 0, clock, log),
		MarkRead:           command.NewMarkNotificationReadHandler(st, clock, log),
		MarkAllRead:        command.NewMarkAllNotificationsReadHandler(st, clock, log),

		Children:      query.NewChildrenHandler(st),
		Safety:        query.NewSafetySettingsHandler(st),
		Missions:      query.NewMissionsHandler(query.NewStoreMissionCatalog(st), clock, time.UTC),
		Progress:      query.NewProgressHandler(st),
		Submissions:   query.NewListSubmissionsHandler(st),
		Rewards:       query.NewRewardsHandler(st, nil),
		Notifications: query.NewNotificationsHandler(st),

		Verifier: verifier,
		Logger:   log,
	}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	s, err := NewServer(cfg, deps)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, verifier: verifier, store: st}
}

func (e *testEnv) token(userID string, role access.Role) string {
	e.t.Helper()
	tok, err := e.verifier.Issue(auth.Principal{
		UserID:   userID,
		Email:    userID + "@example.com",
		Language: "es",
		Role:     role,
	}, time.Hour, "luz-test", "")
	require.NoError(e.t, err)
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

func (e *testEnv) do(method, path, token string, body interface{}, headers ...string) (int, envelope) {
	e.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return e.send(req)
}

func (e *testEnv) send(req *http.Request) (int, envelope) {
	e.t.Helper()
	resp, err := e.srv.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestServer_EndToEndFlow(t *testing.T) {
	e := newTestEnv(t)
	parentTok := e.token("guardian-1", access.RoleParent)
	otherTok := e.token("guardian-2", access.RoleParent)
	adminTok := e.token("admin-1", access.RoleAdmin)

	// Registration applies the age defaults.
	status, env := e.do("POST", "/api/v1/children", parentTok, map[string]interface{}{
		"displayName": "Mateo", "ageYears": 5,
	})
	require.Equal(t, http.StatusCreated, status, "%+v", env.Error)
	child := decode[map[string]interface{}](t, env.Data)
	childID := child["id"].(string)
	assert.Equal(t, "INICIADO", child["rank"])
	assert.Len(t, child["secretCode"], 6)

	// Foreign guardians do not see the child.
	status, env = e.do("GET", "/api/v1/children/"+childID, otherTok, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, codeNotFound, env.Error.Code)

	// Safety: loosening a permission at age 5 lists every violation.
	status, env = e.do("PUT", "/api/v1/safety-settings/"+childID, parentTok, map[string]bool{
		"canBrowseCommunity": true,
		"canPostToCommunity": true,
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codePolicyViolation, env.Error.Code)
	assert.Len(t, env.Error.Errors, 2)

	status, env = e.do("PUT", "/api/v1/safety-settings/"+childID, parentTok, map[string]bool{
		"canViewGlobalMap": false,
	})
	require.Equal(t, http.StatusOK, status)
	safety := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, []interface{}{"canViewGlobalMap"}, safety["changedFields"])

	status, _ = e.do("POST", "/api/v1/safety-settings/"+childID+"/reset", parentTok, nil)
	assert.Equal(t, http.StatusOK, status)

	// Only administrators publish missions.
	missionBody := map[string]interface{}{
		"year": 2026, "month": 3, "title": "Misión de la Bondad", "pointsPerChallenge": 25,
		"challenges": []map[string]interface{}{
			{"title": "Ayuda en casa", "allowedProofKinds": []string{"photo"}},
			{"title": "Canta una canción", "allowedProofKinds": []string{"audio", "video"}},
		},
	}
	status, _ = e.do("POST", "/api/v1/missions", parentTok, missionBody)
	assert.Equal(t, http.StatusForbidden, status)
	status, env = e.do("POST", "/api/v1/missions", adminTok, missionBody)
	require.Equal(t, http.StatusCreated, status, "%+v", env.Error)

	status, env = e.do("GET", "/api/v1/missions/current", "", nil)
	require.Equal(t, http.StatusOK, status)
	current := decode[query.MissionDTO](t, env.Data)
	require.Len(t, current.Challenges, 2)
	challengeID := current.Challenges[0].ID

	// Upload a proof, then submit it.
	proofRef := e.upload(parentTok, "photo", "casa.png", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...))

	submit := map[string]interface{}{
		"childId": childID, "challengeId": challengeID, "proofKind": "photo", "proofRefs": []string{proofRef},
	}
	status, env = e.do("POST", "/api/v1/submissions", parentTok, submit)
	require.Equal(t, http.StatusCreated, status, "%+v", env.Error)
	sub := decode[submitResponse](t, env.Data)
	assert.Equal(t, "PENDING", string(sub.Submission.Status))

	status, env = e.do("POST", "/api/v1/submissions", parentTok, submit)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, codeConflict, env.Error.Code)

	// Guardians may not review; admins approve once.
	review := map[string]string{"decision": "APPROVED"}
	status, _ = e.do("PUT", "/api/v1/submissions/"+sub.Submission.ID+"/review", parentTok, review)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = e.do("PUT", "/api/v1/submissions/"+sub.Submission.ID+"/review", adminTok, review)
	require.Equal(t, http.StatusOK, status, "%+v", env.Error)
	reviewed := decode[reviewResponse](t, env.Data)
	assert.Equal(t, 25, reviewed.PointsAwarded)
	require.NotNil(t, reviewed.NewBalance)
	assert.Equal(t, 25, *reviewed.NewBalance)
	require.NotNil(t, reviewed.Progress)
	assert.Equal(t, 50, reviewed.Progress.CompletionPercentage)

	status, env = e.do("PUT", "/api/v1/submissions/"+sub.Submission.ID+"/review", adminTok, review)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeAlreadyReviewed, env.Error.Code)

	// 25 points do not buy a 50 point avatar.
	status, env = e.do("GET", "/api/v1/rewards?kind=DIGITAL", "", nil)
	require.Equal(t, http.StatusOK, status)
	catalog := decode[query.CatalogDTO](t, env.Data)
	require.Len(t, catalog.Rewards, 1)
	avatar := catalog.Rewards[0]

	status, env = e.do("POST", "/api/v1/redemptions", parentTok, map[string]string{
		"childId": childID, "rewardId": avatar.ID,
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeInsufficientFunds, env.Error.Code)
	assert.EqualValues(t, 50, env.Error.Details["required"])
	assert.EqualValues(t, 25, env.Error.Details["available"])
	assert.EqualValues(t, 25, env.Error.Details["shortage"])

	status, env = e.do("GET", "/api/v1/children/"+childID+"/rewards/available", parentTok, nil)
	require.Equal(t, http.StatusOK, status)
	avail := decode[map[string]interface{}](t, env.Data)
	assert.EqualValues(t, 25, avail["childLuzPoints"])

	status, env = e.do("GET", "/api/v1/children/"+childID+"/submissions?status=APPROVED", parentTok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, env.Meta.Total)

	status, env = e.do("GET", "/api/v1/children/"+childID+"/progress", parentTok, nil)
	require.Equal(t, http.StatusOK, status)
	progress := decode[query.ProgressDTO](t, env.Data)
	assert.Equal(t, 25, progress.PointsBalance)
	assert.Len(t, progress.Ledger, 1)

	// Deleting cascades; the child is gone afterwards.
	status, _ = e.do("DELETE", "/api/v1/children/"+childID, parentTok, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = e.do("GET", "/api/v1/children/"+childID, parentTok, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func (e *testEnv) upload(token, kind, filename string, data []byte) string {
	e.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(e.t, mw.WriteField("kind", kind))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(e.t, err)
	_, err = fw.Write(data)
	require.NoError(e.t, err)
	require.NoError(e.t, mw.Close())

	req, err := http.NewRequest("POST", e.srv.URL+"/api/v1/uploads", &body)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	status, env := e.send(req)
	require.Equal(e.t, http.StatusCreated, status, "%+v", env.Error)
	res := decode[command.UploadProofResult](e.t, env.Data)
	assert.Equal(e.t, "photo", string(res.Kind))
	return res.ProofRef
}

func TestServer_Authentication(t *testing.T) {
	e := newTestEnv(t)

	status, env := e.do("GET", "/api/v1/children", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, codeUnauthorized, env.Error.Code)

	status, _ = e.do("GET", "/api/v1/children", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = e.do("GET", "/api/v1/children", e.token("guardian-1", access.RoleParent), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.NotEmpty(t, env.Meta.RequestID)
}

func TestServer_RequestHandling(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token("guardian-1", access.RoleParent)

	status, env := e.do("GET", "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)

	status, env = e.do("POST", "/api/v1/children", tok, map[string]interface{}{"displayName": "Ana", "unknown": 1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeValidation, env.Error.Code)

	status, env = e.do("GET", "/api/v1/missions/2026/13", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeValidation, env.Error.Code)

	status, _ = e.do("GET", "/api/v1/missions/2026/4", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = e.do("GET", "/health", "", nil, "X-Request-ID", "req-42")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "req-42", env.Meta.RequestID)
}

func TestServer_UpdateChildProfile(t *testing.T) {
	e := newTestEnv(t)
	parentTok := e.token("guardian-1", access.RoleParent)

	status, env := e.do("POST", "/api/v1/children", parentTok, map[string]interface{}{
		"displayName": "Mateo", "ageYears": 11,
	})
	require.Equal(t, http.StatusCreated, status, "%+v", env.Error)
	childID := decode[map[string]interface{}](t, env.Data)["id"].(string)

	status, env = e.do("PATCH", "/api/v1/children/"+childID, e.token("guardian-2", access.RoleParent),
		map[string]interface{}{"name": "Otro"})
	assert.Equal(t, http.StatusNotFound, status)

	status, env = e.do("PATCH", "/api/v1/children/"+childID, parentTok, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeValidation, env.Error.Code)

	status, env = e.do("PATCH", "/api/v1/children/"+childID, parentTok, map[string]interface{}{
		"name": "Mateo Sol", "age": 6, "countryCode": "cl", "avatarUrl": "https://cdn.example/m.png",
	})
	require.Equal(t, http.StatusOK, status, "%+v", env.Error)
	res := decode[struct {
		Child           map[string]interface{} `json:"child"`
		ChangedFields   []string               `json:"changedFields"`
		SafetyTightened []string               `json:"safetyTightened"`
	}](t, env.Data)
	assert.Equal(t, "Mateo Sol", res.Child["displayName"])
	assert.Equal(t, "CL", res.Child["countryCode"])
	assert.EqualValues(t, 6, res.Child["ageYears"])
	assert.Len(t, res.ChangedFields, 4)
	assert.Contains(t, res.SafetyTightened, "canBrowseCommunity")

	safety := res.Child["safetySettings"].(map[string]interface{})
	assert.Equal(t, true, safety["requiresParentAssistance"])
	assert.Equal(t, false, safety["canBrowseCommunity"])
}

func TestServer_NotificationInbox(t *testing.T) {
	e := newTestEnv(t)
	parentTok := e.token("guardian-1", access.RoleParent)
	otherTok := e.token("guardian-2", access.RoleParent)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	require.NoError(t, store.Run(ctx, e.store, func(uow store.UnitOfWork) error {
		for i := 0; i < 3; i++ {
			n, err := notification.NewNotification(notification.Message{
				RecipientID: "guardian-1",
				Kind:        notification.KindRankUp,
				Payload:     map[string]string{"newRank": "VALIENTE"},
			}, testNow.Add(time.Duration(i)*time.Minute))
			if err != nil {
				return err
			}
			ids = append(ids, n.ID)
			if err := uow.Notifications().Create(ctx, n); err != nil {
				return err
			}
		}
		return nil
	}))

	status, env := e.do("GET", "/api/v1/notifications?page=1&limit=2", parentTok, nil)
	require.Equal(t, http.StatusOK, status, "%+v", env.Error)
	page := decode[query.InboxPage](t, env.Data)
	assert.Equal(t, query.Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, page.Pagination)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, ids[2], page.Notifications[0].ID)

	status, env = e.do("GET", "/api/v1/notifications?page=zero", parentTok, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, codeValidation, env.Error.Code)

	status, env = e.do("PUT", "/api/v1/notifications/"+ids[0]+"/read", otherTok, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, codeNotFound, env.Error.Code)

	status, env = e.do("PUT", "/api/v1/notifications/"+ids[0]+"/read", parentTok, nil)
	require.Equal(t, http.StatusOK, status, "%+v", env.Error)
	assert.True(t, decode[notification.Notification](t, env.Data).Read)

	status, env = e.do("GET", "/api/v1/notifications/unread", parentTok, nil)
	require.Equal(t, http.StatusOK, status)
	unread := decode[query.UnreadInbox](t, env.Data)
	assert.Equal(t, 2, unread.Count)
	assert.Len(t, unread.Notifications, 2)

	status, env = e.do("PUT", "/api/v1/notifications/read-all", parentTok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"marked":2}`, string(env.Data))

	status, env = e.do("GET", "/api/v1/notifications/unread", otherTok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"count":0,"notifications":[]}`, string(env.Data))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"already reviewed", shared.ErrAlreadyReviewed, http.StatusBadRequest, codeAlreadyReviewed},
		{"duplicate request", shared.ErrDuplicateRequest, http.StatusConflict, codeDuplicateRequest},
		{"duplicate submission", shared.ErrDuplicateSubmission, http.StatusConflict, codeConflict},
		{"insufficient", shared.NewInsufficientFunds("reward", "Redeem", 500, 450), http.StatusBadRequest, codeInsufficientFunds},
		{"out of stock", shared.ErrRewardOutOfStock, http.StatusBadRequest, codeOutOfStock},
		{"not redeemable", shared.ErrRewardNotRedeemable, http.StatusBadRequest, codeNotRedeemable},
		{"validation", shared.ErrProofRequired, http.StatusBadRequest, codeValidation},
		{"age", shared.ErrInvalidAge, http.StatusBadRequest, codeValidation},
		{"unauthorized", shared.NewDomainError("access", "Validate", shared.ErrUnauthorized, "x"), http.StatusUnauthorized, codeUnauthorized},
		{"forbidden", shared.NewDomainError("access", "Award", shared.ErrForbidden, "x"), http.StatusForbidden, codeForbidden},
		{"not found", fmt.Errorf("load: %w", shared.ErrRewardNotFound), http.StatusNotFound, codeNotFound},
		{"initiation twice", shared.ErrInitiationAlreadyDone, http.StatusConflict, codeConflict},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, codeInternal},

		// Copies carrying details keep their sentinel's mapping.
		{"already reviewed with detail", shared.ErrAlreadyReviewed.WithDetail("status", "APPROVED"), http.StatusBadRequest, codeAlreadyReviewed},
		{"duplicate request with detail", shared.ErrDuplicateRequest.WithDetail("idempotencyKey", "k-1"), http.StatusConflict, codeDuplicateRequest},
		{"proof kind with detail", shared.ErrProofKindNotAllowed.WithDetail("allowedTypes", []string{"PHOTO"}), http.StatusBadRequest, codeValidation},
		{"shipping with detail", shared.ErrShippingInfoRequired.WithDetail("missing", []string{"city"}), http.StatusBadRequest, codeValidation},
		{"wrapped detail copy", fmt.Errorf("review: %w", shared.ErrAlreadyReviewed.WithDetail("status", "REJECTED")), http.StatusBadRequest, codeAlreadyReviewed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr := classifyError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}

	_, apiErr := classifyError(shared.NewInsufficientFunds("reward", "Redeem", 500, 450))
	assert.Equal(t, 50, apiErr.Details["shortage"])

	_, apiErr = classifyError(shared.ErrAlreadyReviewed.WithDetail("status", "APPROVED"))
	assert.Equal(t, "APPROVED", apiErr.Details["status"])

	_, apiErr = classifyError(errors.New("pq: password authentication failed"))
	assert.NotContains(t, apiErr.Message, "password")
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))
	rl.mu.Lock()
	_, kept := rl.requests["b"]
	rl.mu.Unlock()
	assert.False(t, kept, "idle keys are swept")
}

func TestHealthChecker(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	checker.AddOptionalCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") })

	status := checker.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Contains(t, status.Message, "redis")

	checker.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
	status = checker.Check(context.Background())
	assert.False(t, status.Ready)
	assert.False(t, status.Checks["postgres"].Healthy)
}

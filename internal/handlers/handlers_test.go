package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/comunidad/backend/internal/middleware"
	"github.com/comunidad/backend/internal/models"
	"github.com/comunidad/backend/internal/services"
)

type fakeApplier struct {
	result services.ActionResult
	err    error
	calls  []string
}

func (f *fakeApplier) Apply(_ context.Context, userID, action, requestID string) (services.ActionResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s|%s|%s", userID, action, requestID))
	return f.result, f.err
}

type fakeNotifier struct {
	result services.NotifyResult
	err    error
	reqs   []models.NotificationRequest
}

func (f *fakeNotifier) NotifyAdmins(_ context.Context, req models.NotificationRequest) (services.NotifyResult, error) {
	f.reqs = append(f.reqs, req)
	return f.result, f.err
}

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func newTestRouter(g *GamificationHandler, n *NotifyHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/gamification", g.Apply)
	r.Post("/notify-admins", n.NotifyAdmins)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGamificationSuccessWithLevelChange(t *testing.T) {
	level := models.LevelColaboradorActivo
	applier := &fakeApplier{result: services.ActionResult{
		PointsAdded: 50, NewTotalPoints: 549, LevelChanged: true, NewLevel: &level,
	}}
	router := newTestRouter(NewGamificationHandler(applier, quietLogger()), NewNotifyHandler(&fakeNotifier{}, quietLogger()))

	rec := do(t, router, http.MethodPost, "/gamification", `{"userId":"u1","actionType":"SERVICE_APPROVED","requestId":"r1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["pointsAdded"] != float64(50) || body["newTotalPoints"] != float64(549) || body["levelChanged"] != true {
		t.Fatalf("unexpected body %v", body)
	}
	if body["newLevel"] != "ColaboradorActivo" {
		t.Fatalf("expected newLevel, got %v", body["newLevel"])
	}
	if len(applier.calls) != 1 || applier.calls[0] != "u1|SERVICE_APPROVED|r1" {
		t.Fatalf("unexpected service calls %v", applier.calls)
	}
}

func TestGamificationOmitsNewLevelWithoutChange(t *testing.T) {
	applier := &fakeApplier{result: services.ActionResult{PointsAdded: 75, NewTotalPoints: 75}}
	router := newTestRouter(NewGamificationHandler(applier, quietLogger()), NewNotifyHandler(&fakeNotifier{}, quietLogger()))

	rec := do(t, router, http.MethodPost, "/gamification", `{"userId":"u1","actionType":"CREATE_EVENT"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "newLevel") {
		t.Fatalf("expected newLevel to be omitted, got %s", rec.Body.String())
	}
}

func TestGamificationErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{"userId":`, nil, http.StatusBadRequest},
		{"missing fields", `{"userId":"u1"}`, nil, http.StatusBadRequest},
		{"invalid action", `{"userId":"u1","actionType":"NOPE"}`, fmt.Errorf("%w: NOPE", services.ErrInvalidAction), http.StatusBadRequest},
		{"not found", `{"userId":"ghost","actionType":"CREATE_EVENT"}`, fmt.Errorf("%w: ghost", services.ErrUserNotFound), http.StatusNotFound},
		{"duplicate", `{"userId":"u1","actionType":"CREATE_EVENT","requestId":"r"}`, services.ErrDuplicateRequest, http.StatusConflict},
		{"store failure", `{"userId":"u1","actionType":"CREATE_EVENT"}`, fmt.Errorf("%w: timeout", services.ErrPersistence), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			applier := &fakeApplier{err: tc.err}
			router := newTestRouter(NewGamificationHandler(applier, quietLogger()), NewNotifyHandler(&fakeNotifier{}, quietLogger()))

			rec := do(t, router, http.MethodPost, "/gamification", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}

			var body models.APIResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Error == "" {
				t.Fatalf("expected terse error body, got %+v", body)
			}
			if strings.Contains(body.Error, "timeout") {
				t.Fatalf("internal details leaked: %s", body.Error)
			}
		})
	}
}

func TestFailureLogsCarryRequestScope(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	applier := &fakeApplier{err: fmt.Errorf("%w: timeout", services.ErrPersistence)}
	notifier := &fakeNotifier{err: services.ErrNotificationProvider}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Post("/gamification", NewGamificationHandler(applier, entry).Apply)
	r.Post("/notify-admins", NewNotifyHandler(notifier, entry).NotifyAdmins)

	req := httptest.NewRequest(http.MethodPost, "/gamification", strings.NewReader(`{"userId":"u1","actionType":"CREATE_EVENT"}`))
	req.Header.Set(chimw.RequestIDHeader, "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	last := hook.LastEntry()
	if last == nil || last.Level != logrus.ErrorLevel {
		t.Fatalf("expected an error entry, got %+v", last)
	}
	if last.Data["request_id"] != "req-42" || last.Data["user_id"] != "u1" || last.Data["event"] != "gamification_failed" {
		t.Fatalf("expected request scoped fields, got %v", last.Data)
	}

	hook.Reset()
	req = httptest.NewRequest(http.MethodPost, "/notify-admins", strings.NewReader(`{"itemType":"Evento","itemId":"e1","province":"Ontario"}`))
	req.Header.Set(chimw.RequestIDHeader, "req-43")
	r.ServeHTTP(httptest.NewRecorder(), req)

	last = hook.LastEntry()
	if last == nil || last.Data["request_id"] != "req-43" || last.Data["item_id"] != "e1" {
		t.Fatalf("expected notify failure to be logged with request id, got %+v", last)
	}
	if _, ok := last.Data["user_id"]; ok {
		t.Fatalf("expected no user id for anonymous caller, got %v", last.Data)
	}
}

func TestGamificationRejectsOtherUsersForMembers(t *testing.T) {
	applier := &fakeApplier{}
	router := chi.NewRouter()
	router.Use(middleware.Authenticate(middleware.AuthConfig{Verifier: staticVerifier{uid: "u1"}}))
	router.Post("/gamification", NewGamificationHandler(applier, quietLogger()).Apply)

	req := httptest.NewRequest(http.MethodPost, "/gamification", strings.NewReader(`{"userId":"u2","actionType":"CREATE_EVENT"}`))
	req.Header.Set("Authorization", "Bearer any")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(applier.calls) != 0 {
		t.Fatalf("expected no ledger call")
	}
}

func TestMethodNotAllowedOnEndpoints(t *testing.T) {
	router := newTestRouter(NewGamificationHandler(&fakeApplier{}, quietLogger()), NewNotifyHandler(&fakeNotifier{}, quietLogger()))

	for _, path := range []string{"/gamification", "/notify-admins"} {
		rec := do(t, router, http.MethodGet, path, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405 for GET %s, got %d", path, rec.Code)
		}
	}
}

func TestNotifyAdminsResponses(t *testing.T) {
	notifier := &fakeNotifier{result: services.NotifyResult{RecipientsNotified: 2}}
	router := newTestRouter(NewGamificationHandler(&fakeApplier{}, quietLogger()), NewNotifyHandler(notifier, quietLogger()))

	rec := do(t, router, http.MethodPost, "/notify-admins", `{"itemType":"Evento","itemId":" e1 ","province":"Ontario","itemName":"Feria"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body models.NotifyAdminsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.RecipientsNotified != 2 || !strings.Contains(body.Message, "2") {
		t.Fatalf("unexpected body %+v", body)
	}
	if notifier.reqs[0].ItemID != "e1" {
		t.Fatalf("expected normalized request, got %+v", notifier.reqs[0])
	}

	notifier.result = services.NotifyResult{}
	rec = do(t, router, http.MethodPost, "/notify-admins", `{"itemType":"Servicio","itemId":"s1","province":"Yukon"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"recipientsNotified":0`) {
		t.Fatalf("expected zero-recipient success, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestNotifyAdminsErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `nope`, nil, http.StatusBadRequest},
		{"bad item type", `{"itemType":"Noticia","itemId":"1","province":"Ontario"}`, nil, http.StatusBadRequest},
		{"missing province", `{"itemType":"Evento","itemId":"1"}`, nil, http.StatusBadRequest},
		{"directory failure", `{"itemType":"Evento","itemId":"1","province":"Ontario"}`, services.ErrPersistence, http.StatusInternalServerError},
		{"provider failure", `{"itemType":"Evento","itemId":"1","province":"Ontario"}`, services.ErrNotificationProvider, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &fakeNotifier{err: tc.err}
			router := newTestRouter(NewGamificationHandler(&fakeApplier{}, quietLogger()), NewNotifyHandler(notifier, quietLogger()))

			rec := do(t, router, http.MethodPost, "/notify-admins", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.err == nil && len(notifier.reqs) != 0 {
				t.Fatalf("expected no dispatch for malformed request")
			}
		})
	}
}

type fakeLedgerReader struct {
	ledger models.UserLedger
	err    error
}

func (f fakeLedgerReader) Ledger(_ context.Context, userID string) (models.UserLedger, error) {
	l := f.ledger
	l.UserID = userID
	return l, f.err
}

func TestLedgerHandler(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/ledger/{userId}", NewLedgerHandler(fakeLedgerReader{ledger: models.UserLedger{Points: 600}}, quietLogger()).Get)

	rec := do(t, router, http.MethodGet, "/ledger/u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got models.UserLedger
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID != "u1" || got.Points != 600 || got.MembershipLevel != models.LevelColaboradorActivo || got.Badges == nil {
		t.Fatalf("unexpected ledger %+v", got)
	}

	router = chi.NewRouter()
	router.Get("/ledger/{userId}", NewLedgerHandler(fakeLedgerReader{err: services.ErrUserNotFound}, quietLogger()).Get)
	if rec := do(t, router, http.MethodGet, "/ledger/ghost", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type staticVerifier struct {
	uid string
}

func (s staticVerifier) VerifyIDToken(context.Context, string) (*fbauth.Token, error) {
	return &fbauth.Token{UID: s.uid}, nil
}

type staticHealth struct {
	checks  map[string]string
	healthy bool
}

func (s staticHealth) Health(context.Context) (map[string]string, bool) {
	return s.checks, s.healthy
}

func TestHealthReportsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(staticHealth{checks: map[string]string{"store": "ok"}, healthy: true})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("expected ok body, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	Health(staticHealth{checks: map[string]string{"store": "error"}})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || strings.TrimSpace(rec.Body.String()) != `{"status":"degraded","store":"error"}` {
		t.Fatalf("expected degraded body, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestContentEventHandler(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		notifyErr  error
		status     int
		wantNotify bool
		wantType   models.ItemType
	}{
		{
			name:       "direct payload",
			body:       `{"collection":"services","id":"s1","province":"Ontario","name":"Clases de guitarra"}`,
			status:     http.StatusOK,
			wantNotify: true,
			wantType:   models.ItemServicio,
		},
		{
			name:       "cloud event envelope",
			body:       `{"specversion":"1.0","id":"ce-1","type":"content.created","data":{"collection":"events","id":"e1","province":"Ontario"}}`,
			status:     http.StatusOK,
			wantNotify: true,
			wantType:   models.ItemEvento,
		},
		{
			name:       "explicit item type",
			body:       `{"itemType":"Usuario","id":"u9","province":"Quebec"}`,
			status:     http.StatusOK,
			wantNotify: true,
			wantType:   models.ItemUsuario,
		},
		{
			name:   "unknown collection acknowledged",
			body:   `{"collection":"comments","id":"c1","province":"Ontario"}`,
			status: http.StatusOK,
		},
		{
			name:   "malformed body",
			body:   `[`,
			status: http.StatusBadRequest,
		},
		{
			name:       "incomplete payload acknowledged",
			body:       `{"collection":"events","id":"e1"}`,
			notifyErr:  fmt.Errorf("%w: province es obligatorio", services.ErrValidation),
			status:     http.StatusOK,
			wantNotify: true,
			wantType:   models.ItemEvento,
		},
		{
			name:       "dispatch failure retried",
			body:       `{"collection":"events","id":"e1","province":"Ontario"}`,
			notifyErr:  errors.Join(services.ErrNotificationProvider, errors.New("http 500")),
			status:     http.StatusInternalServerError,
			wantNotify: true,
			wantType:   models.ItemEvento,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &fakeNotifier{err: tc.notifyErr}
			h := NewContentEventHandler(notifier, quietLogger())

			rec := do(t, http.HandlerFunc(h.Handle), http.MethodPost, "/events", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.wantNotify != (len(notifier.reqs) == 1) {
				t.Fatalf("expected notify=%v, got %d calls", tc.wantNotify, len(notifier.reqs))
			}
			if tc.wantNotify && notifier.reqs[0].ItemType != tc.wantType {
				t.Fatalf("expected item type %s, got %s", tc.wantType, notifier.reqs[0].ItemType)
			}
		})
	}
}

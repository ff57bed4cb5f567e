package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/connectpro/internal/enrich"
	"github.com/and161185/connectpro/internal/lastcontact"
	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/repository/memory"
	"github.com/and161185/connectpro/internal/service"
)

type stubScraper struct{}

func (stubScraper) Scrape(context.Context, string) (model.EnrichmentResult, error) {
	return model.EnrichmentResult{Name: "Ada Lovelace", Company: "Engines"}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type harness struct {
	t *testing.T
	h http.Handler
}

func newHarness(t *testing.T, db Pinger) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := memory.New()
	tags := service.NewTagService(store.Tags(), nil, log)
	_, err := tags.Seed(context.Background())
	require.NoError(t, err)
	pool := enrich.NewPool(stubScraper{}, enrich.Options{Workers: 1}, log)
	t.Cleanup(pool.Stop)

	srv := New(Deps{
		Auth:        service.NewAuthService(store.Users(), service.AuthConfig{SignKey: []byte("k"), FrontendURL: "http://app.test"}, nil),
		Connections: service.NewConnectionService(store, tags),
		Logs:        service.NewLogService(store, tags, lastcontact.New(log)),
		Tags:        tags,
		Enrich:      pool,
		DB:          db,
	}, log)
	return &harness{t: t, h: srv.Handler(Options{CORSOrigins: []string{"http://app.test"}})}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *harness) login(email string) string {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "name": "Tester"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decodeBody[map[string]string](h.t, rec)
	require.Equal(h.t, "Magic link generated", reg["message"])
	u, err := url.Parse(reg["magic_link"])
	require.NoError(h.t, err)
	require.Equal(h.t, "/verify", u.Path)

	rec = h.do(http.MethodPost, "/api/auth/verify?token="+url.QueryEscape(u.Query().Get("token")), "", nil)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeBody[map[string]any](h.t, rec)
	require.Equal(h.t, "bearer", v["token_type"])
	return v["access_token"].(string)
}

func errKind(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	return decodeBody[ErrorBody](t, rec).Error
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/api/auth/check-email?email=ada@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]bool{"exists": false}, decodeBody[map[string]bool](t, rec))

	tok := h.login("ada@example.com")

	rec = h.do(http.MethodGet, "/api/auth/check-email?email=ADA@example.com", "", nil)
	require.Equal(t, map[string]bool{"exists": true}, decodeBody[map[string]bool](t, rec))

	rec = h.do(http.MethodGet, "/api/auth/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[map[string]any](t, rec)
	require.Equal(t, "ada@example.com", me["email"])
	require.Equal(t, false, me["is_onboarded"])

	rec = h.do(http.MethodPut, "/api/auth/me", tok, map[string]any{"is_onboarded": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decodeBody[map[string]any](t, rec)["is_onboarded"])

	rec = h.do(http.MethodPost, "/api/auth/verify?token=garbage", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid or expired magic link", errKind(t, rec).Message)

	rec = h.do(http.MethodPost, "/api/auth/verify", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnauthenticated(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/api/connections", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, KindUnauthenticated, errKind(t, rec).Kind)

	rec = h.do(http.MethodGet, "/api/connections", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// a magic-link token is not an access token
	rec = h.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "x@example.com"})
	link := decodeBody[map[string]string](t, rec)["magic_link"]
	u, _ := url.Parse(link)
	rec = h.do(http.MethodGet, "/api/auth/me", u.Query().Get("token"), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConnectionsAndLogs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	alice := h.login("alice@example.com")
	bob := h.login("bob@example.com")

	rec := h.do(http.MethodPost, "/api/connections", alice, map[string]any{
		"name": "Ada", "company": "Engines", "frequency": 30, "tags": []string{"Space Travel"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conn := decodeBody[map[string]any](t, rec)
	id := conn["id"].(string)
	require.Nil(t, conn["lastContact"])
	require.Equal(t, "healthy", conn["status"])

	rec = h.do(http.MethodGet, "/api/tags/connection", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tax := decodeBody[map[string]struct {
		Label   string   `json:"label"`
		Options []string `json:"options"`
	}](t, rec)
	require.Equal(t, []string{"Space Travel"}, tax["custom"].Options)
	require.Equal(t, "How We Met", tax["howMet"].Label)

	rec = h.do(http.MethodPost, "/api/logs", alice, map[string]any{
		"connection_id": id, "notes": "coffee", "created_at": "2025-03-10T09:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	logID := decodeBody[map[string]any](t, rec)["id"].(string)

	rec = h.do(http.MethodPost, "/api/logs", alice, map[string]any{
		"connection_id": id, "notes": "older", "created_at": "2025-01-01T09:00:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodGet, "/api/connections/"+id, alice, nil)
	require.Equal(t, "2025-03-10T09:00:00Z", decodeBody[map[string]any](t, rec)["lastContact"])

	rec = h.do(http.MethodGet, "/api/connections/"+id+"/logs", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[map[string]any](t, rec)
	require.EqualValues(t, 2, page["total"])
	require.EqualValues(t, 50, page["limit"])
	require.Equal(t, "coffee", page["items"].([]any)[0].(map[string]any)["notes"], "newest first")

	// access boundary
	rec = h.do(http.MethodGet, "/api/connections/"+id, bob, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(http.MethodPost, "/api/logs", bob, map[string]any{"connection_id": id, "notes": "sneaky"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, KindForbidden, errKind(t, rec).Kind)
	rec = h.do(http.MethodGet, "/api/logs", bob, nil)
	require.EqualValues(t, 0, decodeBody[map[string]any](t, rec)["total"])

	rec = h.do(http.MethodDelete, "/api/logs/"+logID, alice, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodGet, "/api/connections/"+id, alice, nil)
	require.Equal(t, "2025-01-01T09:00:00Z", decodeBody[map[string]any](t, rec)["lastContact"])

	rec = h.do(http.MethodPut, "/api/connections/"+id, alice, map[string]any{"role": "Countess", "lastContact": nil})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	upd := decodeBody[map[string]any](t, rec)
	require.Equal(t, "Countess", upd["role"])
	require.Nil(t, upd["lastContact"])
	require.Equal(t, []any{"Space Travel"}, upd["tags"])

	rec = h.do(http.MethodGet, "/api/connections?q=ada&limit=1000", alice, nil)
	page = decodeBody[map[string]any](t, rec)
	require.EqualValues(t, 1, page["total"])
	require.EqualValues(t, 200, page["limit"])

	rec = h.do(http.MethodGet, "/api/followups", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fu := decodeBody[map[string][]any](t, rec)
	require.Len(t, fu["noSchedule"], 1)

	rec = h.do(http.MethodDelete, "/api/connections/"+id, alice, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodDelete, "/api/connections/"+id, alice, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	tok := h.login("ada@example.com")

	rec := h.do(http.MethodPost, "/api/connections", tok, map[string]any{"name": "", "frequency": 0, "linkedin": "nope"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	d := errKind(t, rec)
	require.Equal(t, KindValidation, d.Kind)
	require.Contains(t, d.Fields, "name")
	require.Contains(t, d.Fields, "linkedin")

	rec = h.do(http.MethodPost, "/api/connections", tok, map[string]any{"name": "x", "frequency": 0})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	d = errKind(t, rec)
	require.Equal(t, KindValidation, d.Kind)
	require.Equal(t, map[string]string{"frequency": "must be between 1 and 3650"}, d.Fields)

	rec = h.do(http.MethodPost, "/api/connections", tok, map[string]any{"name": "x"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.EqualValues(t, 90, decodeBody[map[string]any](t, rec)["frequency"])

	rec = h.do(http.MethodGet, "/api/connections/not-a-uuid", tok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, KindInvalidArgument, errKind(t, rec).Kind)

	rec = h.do(http.MethodGet, "/api/connections?offset=-1", tok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/connections?limit=lots", tok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/tags/bogus", tok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	h.h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEnrichment(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	tok := h.login("ada@example.com")

	rec := h.do(http.MethodPost, "/api/enrich?linkedin_url="+url.QueryEscape("https://www.linkedin.com/in/ada"), tok, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	taskID := decodeBody[map[string]string](t, rec)["task_id"]

	var task map[string]any
	require.Eventually(t, func() bool {
		r := h.do(http.MethodGet, "/api/tasks/"+taskID, tok, nil)
		if r.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(r.Body.Bytes(), &task); err != nil {
			return false
		}
		return task["status"] != "Pending"
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "Success", task["status"])
	require.Equal(t, "Ada Lovelace", task["data"].(map[string]any)["name"])

	other := h.login("bob@example.com")
	rec = h.do(http.MethodGet, "/api/tasks/"+taskID, other, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/api/enrich", tok, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/api/enrich", tok, map[string]string{"linkedin_url": "javascript:alert(1)"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthAndCORS(t *testing.T) {
	t.Parallel()
	rec := newHarness(t, pinger{}).do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	h := newHarness(t, pinger{err: errors.New("db down")})
	rec = h.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/connections", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.h.ServeHTTP(rr, req)
	require.Equal(t, "http://app.test", rr.Header().Get("Access-Control-Allow-Origin"))

	rec = h.do(http.MethodGet, "/nowhere", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecover(t *testing.T) {
	t.Parallel()
	h := Recover(zaptest.NewLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	d := errKind(t, rec)
	require.Equal(t, KindInternal, d.Kind)
	require.Equal(t, "internal error", d.Message)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"BEARER abc":  "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
	}
	for header, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", header)
		got, ok := bearerToken(r)
		require.Equal(t, want, got, header)
		require.Equal(t, want != "", ok, header)
	}
}

package messaging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Vovarama1992/market-messaging/internal/platform/logger"
)

const testSecret = "test-secret"

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("nop")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := mustTestLogger(t)
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(NewService(NewMemoryRepo(), nil, log), log), testSecret, nil)
	return r
}

func mustToken(t *testing.T, v Viewer) string {
	t.Helper()
	tok, err := SignToken(testSecret, v, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v (body=%s)", err, rec.Body.String())
	}
	return env
}

func TestHandlerRequiresBearerToken(t *testing.T) {
	h := newTestRouter(t)
	for _, token := range []string{"", "garbage"} {
		rec := do(t, h, http.MethodGet, "/api/messages", token, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: want=401 got=%d", token, rec.Code)
		}
		if env := decodeError(t, rec); env.Error.Code != "unauthorized" {
			t.Fatalf("code: %+v", env)
		}
	}

	wrongKey, err := SignToken("another-secret", casey, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if rec := do(t, h, http.MethodGet, "/api/messages", wrongKey, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: want=401 got=%d", rec.Code)
	}
}

func TestHandlerSendAndList(t *testing.T) {
	h := newTestRouter(t)
	customer := mustToken(t, casey)
	provider := mustToken(t, paws)

	rec := do(t, h, http.MethodPost, "/api/messages", customer, SendRequest{CounterpartID: "p1", Body: "Is Saturday open?", ContextID: "grooming-42"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: want=201 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var created Message
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.SenderRole != RoleCustomer || created.ContextID != "grooming-42" {
		t.Fatalf("created: %+v", created)
	}

	rec = do(t, h, http.MethodPost, "/api/messages", provider, SendRequest{CounterpartID: "c1", Body: "Yes"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reply: want=201 got=%d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/messages/p1", customer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: want=200 got=%d", rec.Code)
	}
	var thread []Message
	if err := json.NewDecoder(rec.Body).Decode(&thread); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(thread) != 2 || thread[0].ID != created.ID || thread[1].Body != "Yes" {
		t.Fatalf("thread: %+v", thread)
	}

	rec = do(t, h, http.MethodGet, "/api/messages", provider, nil)
	var all []Message
	if err := json.NewDecoder(rec.Body).Decode(&all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("inbox: want=2 got=%d", len(all))
	}
}

func TestHandlerEmptyListIsJSONArray(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/api/messages/p9", mustToken(t, casey), nil)
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("body: want=[] got=%s", got)
	}
}

func TestHandlerValidationErrors(t *testing.T) {
	h := newTestRouter(t)
	tok := mustToken(t, casey)

	rec := do(t, h, http.MethodPost, "/api/messages", tok, SendRequest{CounterpartID: "p1", Body: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank body: want=400 got=%d", rec.Code)
	}
	if env := decodeError(t, rec); env.Error.Code != "validation" || env.Error.Message != ErrEmptyBody.Error() {
		t.Fatalf("envelope: %+v", env)
	}

	rec = do(t, h, http.MethodPost, "/api/messages", tok, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: want=400 got=%d", rec.Code)
	}
}

func TestHandlerDeleteAndClear(t *testing.T) {
	h := newTestRouter(t)
	customer := mustToken(t, casey)
	stranger := mustToken(t, other)

	rec := do(t, h, http.MethodPost, "/api/messages", customer, SendRequest{CounterpartID: "p1", Body: "typo"})
	var m Message
	_ = json.NewDecoder(rec.Body).Decode(&m)
	_ = do(t, h, http.MethodPost, "/api/messages", customer, SendRequest{CounterpartID: "p1", Body: "second"})

	if rec := do(t, h, http.MethodDelete, "/api/messages/"+m.ID, stranger, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: want=404 got=%d", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/messages/"+m.ID, customer, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"deleted"`) {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodDelete, "/api/conversations/p1", customer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: want=200 got=%d", rec.Code)
	}
	var cleared struct {
		Status  string `json:"status"`
		Deleted int64  `json:"deleted"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&cleared); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cleared.Status != "cleared" || cleared.Deleted != 1 {
		t.Fatalf("clear response: %+v", cleared)
	}
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{Role: RoleCustomer, RegisteredClaims: jwt.RegisteredClaims{Subject: "c1"}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken(testSecret, raw); err == nil {
		t.Fatalf("HS512 token accepted")
	}

	noRole := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "c1"}}
	raw, _ = jwt.NewWithClaims(jwt.SigningMethodHS256, noRole).SignedString([]byte(testSecret))
	if _, err := ParseToken(testSecret, raw); err == nil {
		t.Fatalf("token without role accepted")
	}

	v, err := ParseToken(testSecret, mustToken(t, paws))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v != paws {
		t.Fatalf("viewer: want=%+v got=%+v", paws, v)
	}
	if _, err := SignToken(testSecret, Viewer{ID: "x", Role: "admin"}, time.Hour); err == nil {
		t.Fatalf("signed a token for an unknown role")
	}
}

func TestPeekViewerSkipsSignature(t *testing.T) {
	want := Viewer{ID: "p1", Role: RoleProvider, Name: "Paws & Co"}
	tok, err := SignToken("someone-elses-secret", want, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := PeekViewer(tok)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if got != want {
		t.Fatalf("viewer: want=%+v got=%+v", want, got)
	}
	if _, err := ParseToken(testSecret, tok); err == nil {
		t.Fatalf("ParseToken must still verify the signature")
	}
	if _, err := PeekViewer("not-a-token"); err == nil {
		t.Fatalf("want error for garbage")
	}
}

func TestStreamRouteDoesNotShadowCounterparts(t *testing.T) {
	log := mustTestLogger(t)
	svc := NewService(NewMemoryRepo(), nil, log)
	stream := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	})
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(svc, log), testSecret, stream)

	customer := Viewer{ID: "c1", Role: RoleCustomer, Name: "Casey"}
	tok := mustToken(t, customer)
	if rec := do(t, r, http.MethodPost, "/api/messages", tok, SendRequest{CounterpartID: "stream", Body: "hi"}); rec.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
	}

	rec := do(t, r, http.MethodGet, "/api/messages/stream", tok, nil)
	var msgs []Message
	if err := json.NewDecoder(rec.Body).Decode(&msgs); err != nil || rec.Code != http.StatusOK || len(msgs) != 1 {
		t.Fatalf("conversation with \"stream\": code=%d n=%d err=%v", rec.Code, len(msgs), err)
	}

	rec = do(t, r, http.MethodGet, "/api/events", tok, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("events: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

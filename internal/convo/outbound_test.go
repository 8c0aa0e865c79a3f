package convo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
)

func TestHTTPTransportSendsBearerAndJSON(t *testing.T) {
	var gotAuth, gotType, gotPath, gotMethod string
	var gotBody messaging.SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotPath = r.URL.EscapedPath()
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(messaging.Message{ID: "m-1", Body: gotBody.Body})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", " tok-123 ", 0, nil)
	msg, err := tr.Send(context.Background(), messaging.SendRequest{CounterpartID: "p1", Body: "hi", ContextID: "svc"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID != "m-1" || msg.Body != "hi" {
		t.Fatalf("decoded message: %+v", msg)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("authorization: %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Fatalf("content type: %q", gotType)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/messages" {
		t.Fatalf("request line: %s %s", gotMethod, gotPath)
	}
	if gotBody.CounterpartID != "p1" || gotBody.ContextID != "svc" {
		t.Fatalf("payload: %+v", gotBody)
	}
}

func TestHTTPTransportEscapesPathSegments(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "t", time.Second, nil)
	if _, err := tr.List(context.Background(), "a/b c"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotPath != "/api/messages/a%2Fb%20c" {
		t.Fatalf("path: %q", gotPath)
	}
}

func TestHTTPTransportNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"not found","code":"not_found"}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "t", time.Second, nil)
	err := tr.Delete(context.Background(), "m-404")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("want *StatusError got=%T %v", err, err)
	}
	if se.Status != http.StatusNotFound || se.Method != http.MethodDelete || se.Path != "/api/messages/m-404" {
		t.Fatalf("status error: %+v", se)
	}
	if !strings.Contains(se.Body, "not_found") {
		t.Fatalf("body not captured: %q", se.Body)
	}
}

func TestHTTPTransportTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHTTPTransport(srv.URL, "t", 50*time.Millisecond, nil)
	start := time.Now()
	if _, err := tr.ListAll(context.Background()); err == nil {
		t.Fatalf("want timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not applied, took %s", elapsed)
	}
}

func TestHTTPTransportOpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: message.created\ndata: {}\n\n")
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "t", time.Second, nil)
	body, err := tr.OpenStream(context.Background())
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer body.Close()
	b, _ := io.ReadAll(body)
	if !strings.Contains(string(b), "message.created") {
		t.Fatalf("stream body: %q", b)
	}
}

const testSecret = "test-secret"

func newMessagingServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := messaging.NewService(messaging.NewMemoryRepo(), nil, nil)
	r := chi.NewRouter()
	messaging.RegisterRoutes(r, messaging.NewHandler(svc, nil), testSecret, nil)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func clientFor(t *testing.T, srv *httptest.Server, s Session, opts ...Option) *Client {
	t.Helper()
	token, err := messaging.SignToken(testSecret, messaging.Viewer{ID: s.SelfID, Role: s.Role, Name: s.SelfName}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return New(NewHTTPTransport(srv.URL, token, time.Second, nil), s, opts...)
}

func TestClientAgainstMessagingService(t *testing.T) {
	srv := newMessagingServer(t)
	ctx := context.Background()

	customer := clientFor(t, srv, Session{SelfID: "c1", SelfName: "Casey", Role: messaging.RoleCustomer})
	provider := clientFor(t, srv, Session{SelfID: "p1", SelfName: "Paws & Co", Role: messaging.RoleProvider})

	if err := customer.Send(ctx, "p1", "Is Saturday open?", "grooming-42"); err != nil {
		t.Fatalf("customer send: %v", err)
	}
	if err := provider.Send(ctx, "c1", "Yes, 10am works", ""); err != nil {
		t.Fatalf("provider send: %v", err)
	}

	thread, err := customer.Fetch(ctx, "p1", FetchOptions{})
	if err != nil {
		t.Fatalf("customer fetch: %v", err)
	}
	if len(thread) != 2 || thread[0].Body != "Is Saturday open?" || thread[1].Body != "Yes, 10am works" {
		t.Fatalf("thread: %+v", thread)
	}
	if thread[0].ContextID != "grooming-42" {
		t.Fatalf("context id lost: %+v", thread[0])
	}
	if got := customer.UnreadCount(); got != 1 {
		t.Fatalf("customer unread: want=1 got=%d", got)
	}

	if _, err := provider.FetchAll(ctx, FetchOptions{}); err != nil {
		t.Fatalf("provider fetch all: %v", err)
	}
	convs := provider.Conversations()
	if len(convs) != 1 || convs[0].CounterpartID != "c1" || convs[0].CounterpartName != "Casey" {
		t.Fatalf("provider conversations: %+v", convs)
	}

	// either participant may delete any message of the conversation
	if err := customer.Delete(ctx, thread[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := provider.Fetch(ctx, "c1", FetchOptions{}); err != nil {
		t.Fatalf("provider refetch: %v", err)
	}
	if got := len(provider.MessagesWith("c1")); got != 1 {
		t.Fatalf("provider should see one message, got=%d", got)
	}

	if err := provider.Clear(ctx, "c1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	left, err := customer.Fetch(ctx, "p1", FetchOptions{})
	if err != nil {
		t.Fatalf("fetch after clear: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("want empty thread got=%+v", left)
	}
}

func TestClientRejectedTokenSurfacesStatusError(t *testing.T) {
	srv := newMessagingServer(t)
	tr := NewHTTPTransport(srv.URL, "not-a-token", time.Second, nil)
	rec := &noticeRecorder{}
	c := New(tr, customerSession, WithNotifier(rec))

	err := c.Send(context.Background(), "p1", "hello", "")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusUnauthorized {
		t.Fatalf("want 401 StatusError got=%v", err)
	}
	if len(c.Messages()) != 0 {
		t.Fatalf("placeholder left behind")
	}
	if len(rec.all()) != 1 {
		t.Fatalf("want one notice got=%+v", rec.all())
	}
}

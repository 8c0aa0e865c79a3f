package convo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
	"github.com/Vovarama1992/market-messaging/internal/platform/logger"
)

const DefaultRequestTimeout = 10 * time.Second

// StatusError is any non-2xx answer. Status codes are not told apart here.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("messaging api error: %s %s: %d body=%s", e.Method, e.Path, e.Status, e.Body)
}

type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
	stream  *http.Client
	log     *logger.Logger
}

func NewHTTPTransport(baseURL, token string, timeout time.Duration, log *logger.Logger) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: timeout},
		// the event stream is long lived; only its context ends it
		stream: &http.Client{},
		log:    log.With("component", "convo.http"),
	}
}

func (t *HTTPTransport) List(ctx context.Context, counterpartID string) ([]messaging.Message, error) {
	var out []messaging.Message
	err := t.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(counterpartID), nil, &out)
	return out, err
}

func (t *HTTPTransport) ListAll(ctx context.Context) ([]messaging.Message, error) {
	var out []messaging.Message
	err := t.do(ctx, http.MethodGet, "/api/messages", nil, &out)
	return out, err
}

func (t *HTTPTransport) Send(ctx context.Context, req messaging.SendRequest) (*messaging.Message, error) {
	var out messaging.Message
	if err := t.do(ctx, http.MethodPost, "/api/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTPTransport) Delete(ctx context.Context, messageID string) error {
	return t.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID), nil, nil)
}

func (t *HTTPTransport) DeleteConversation(ctx context.Context, counterpartID string) error {
	return t.do(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(counterpartID), nil, nil)
}

// OpenStream subscribes to the service's server-sent event stream.
func (t *HTTPTransport) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/events", nil)
	if err != nil {
		return nil, err
	}
	t.authorize(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(req, resp)
	}
	return resp.Body, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return err
	}
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.log.Debug("request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return statusError(req, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func (t *HTTPTransport) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")
}

func statusError(req *http.Request, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		Method: req.Method,
		Path:   req.URL.Path,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(b)),
	}
}

// Package convotest provides an in-memory Messaging Service for tests of the
// conversation client and the views built on it.
package convotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
)

// Transport answers like the Messaging Service would for one viewer. It
// satisfies convo.Transport.
type Transport struct {
	role   messaging.Role
	selfID string

	mu     sync.Mutex
	msgs   []messaging.Message
	nextID int
	clock  time.Time
	calls  map[string]int
	fail   map[string]error

	// ListHook runs before List answers; call is 1-based. A non-nil result
	// is returned instead of the stored messages.
	ListHook func(ctx context.Context, call int) []messaging.Message
	// SendGate, when set, holds every Send until it is closed.
	SendGate chan struct{}
}

func NewTransport(role messaging.Role, selfID string) *Transport {
	return &Transport{
		role:   role,
		selfID: selfID,
		calls:  make(map[string]int),
		fail:   make(map[string]error),
		clock:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Seed stores a message between the viewer and counterpartID, one second
// after the previous one.
func (f *Transport) Seed(senderRole messaging.Role, counterpartID, body string, read bool) messaging.Message {
	return f.SeedNamed(senderRole, counterpartID, string(senderRole)+"-"+counterpartID, body, read)
}

func (f *Transport) SeedNamed(senderRole messaging.Role, counterpartID, senderName, body string, read bool) messaging.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := messaging.KeyFor(f.role, f.selfID, counterpartID)
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	m := messaging.Message{
		ID:         fmt.Sprintf("m%d", f.nextID),
		CustomerID: key.CustomerID,
		ProviderID: key.ProviderID,
		SenderRole: senderRole,
		SenderName: senderName,
		Body:       body,
		CreatedAt:  f.clock,
		IsRead:     read,
	}
	f.msgs = append(f.msgs, m)
	return m
}

// Fail makes op ("list", "send", "delete", "clear") return err; nil heals it.
// "list" covers both List and ListAll.
func (f *Transport) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// Calls reports how often op ran: "list", "listAll", "send", "delete" or "clear".
func (f *Transport) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Transport) ServerIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, m := range f.msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func (f *Transport) List(ctx context.Context, counterpartID string) ([]messaging.Message, error) {
	f.mu.Lock()
	f.calls["list"]++
	call := f.calls["list"]
	hook := f.ListHook
	err := f.fail["list"]
	f.mu.Unlock()

	if hook != nil {
		if out := hook(ctx, call); out != nil {
			return out, nil
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []messaging.Message
	for _, m := range f.msgs {
		if m.CounterpartID(f.role) == counterpartID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *Transport) ListAll(ctx context.Context) ([]messaging.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["listAll"]++
	if err := f.fail["list"]; err != nil {
		return nil, err
	}
	out := make([]messaging.Message, len(f.msgs))
	copy(out, f.msgs)
	return out, nil
}

func (f *Transport) Send(ctx context.Context, req messaging.SendRequest) (*messaging.Message, error) {
	f.mu.Lock()
	f.calls["send"]++
	gate := f.SendGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	err := f.fail["send"]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m := f.Seed(f.role, req.CounterpartID, req.Body, false)
	return &m, nil
}

func (f *Transport) Delete(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if err := f.fail["delete"]; err != nil {
		return err
	}
	for i, m := range f.msgs {
		if m.ID == messageID {
			f.msgs = append(f.msgs[:i], f.msgs[i+1:]...)
			return nil
		}
	}
	return messaging.ErrNotFound
}

func (f *Transport) DeleteConversation(ctx context.Context, counterpartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["clear"]++
	if err := f.fail["clear"]; err != nil {
		return err
	}
	kept := f.msgs[:0]
	for _, m := range f.msgs {
		if m.CounterpartID(f.role) != counterpartID {
			kept = append(kept, m)
		}
	}
	f.msgs = kept
	return nil
}

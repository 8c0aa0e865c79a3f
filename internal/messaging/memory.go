package messaging

import (
	"context"
	"sync"
)

type memoryRepo struct {
	mu   sync.RWMutex
	msgs []Message
}

// NewMemoryRepo keeps messages in process memory, in insertion order.
func NewMemoryRepo() Repo {
	return &memoryRepo{}
}

func (r *memoryRepo) SaveMessage(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, *msg)
	return nil
}

func (r *memoryRepo) GetMessage(_ context.Context, id string) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.msgs {
		if m.ID == id {
			cp := m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) ListConversation(_ context.Context, key Key) ([]Message, error) {
	return r.filter(func(m Message) bool { return m.Key() == key }), nil
}

func (r *memoryRepo) ListForParticipant(_ context.Context, role Role, userID string) ([]Message, error) {
	return r.filter(func(m Message) bool {
		if role == RoleProvider {
			return m.ProviderID == userID
		}
		return m.CustomerID == userID
	}), nil
}

func (r *memoryRepo) DeleteMessage(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.msgs {
		if m.ID == id {
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepo) DeleteConversation(_ context.Context, key Key) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.msgs[:0]
	var n int64
	for _, m := range r.msgs {
		if m.Key() == key {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.msgs = kept
	return n, nil
}

func (r *memoryRepo) filter(keep func(Message) bool) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Message, 0)
	for _, m := range r.msgs {
		if keep(m) {
			out = append(out, m)
		}
	}
	SortMessages(out)
	return out
}

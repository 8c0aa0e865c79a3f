package convo

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Vovarama1992/market-messaging/internal/convo/convotest"
	"github.com/Vovarama1992/market-messaging/internal/messaging"
)

var errBoom = errors.New("boom")

func newFake(viewer Session) *convotest.Transport {
	return convotest.NewTransport(viewer.Role, viewer.SelfID)
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var (
	customerSession = Session{SelfID: "c1", SelfName: "Casey", Role: messaging.RoleCustomer}
	providerSession = Session{SelfID: "p1", SelfName: "Paws & Co", Role: messaging.RoleProvider}
)

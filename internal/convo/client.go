package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
	"github.com/Vovarama1992/market-messaging/internal/platform/logger"
)

const tempIDPrefix = "tmp-"

// FetchToken identifies one fetch. Only the newest token of a client may
// apply its result; older ones are discarded when they come back.
type FetchToken struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *FetchToken) Context() context.Context { return t.ctx }

// Within derives a context from ctx that is also cancelled when scope ends.
// Views run writes under it so closing the view cancels them.
func Within(ctx, scope context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(scope, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

type tombstone struct {
	done bool
	gen  uint64
}

// Client holds one view's copy of message state and mediates every read and
// write against the Messaging Service. Views never share a Client.
type Client struct {
	transport Transport
	session   Session
	log       *logger.Logger
	notifier  Notifier
	now       func() time.Time
	newID     func() string

	mu         sync.Mutex
	msgs       []messaging.Message
	pending    map[string]bool
	tombstones map[string]tombstone
	readMarks  map[string]time.Time
	gen        uint64
	cancel     context.CancelFunc
	loading    bool
	listeners  map[int]func()
	nextListen int
}

type Option func(*Client)

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(c *Client) { c.newID = gen }
}

func New(transport Transport, session Session, opts ...Option) *Client {
	c := &Client{
		transport:  transport,
		session:    session,
		log:        logger.Nop(),
		now:        time.Now,
		newID:      uuid.NewString,
		pending:    make(map[string]bool),
		tombstones: make(map[string]tombstone),
		readMarks:  make(map[string]time.Time),
		listeners:  make(map[int]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "convo.client", "role", session.Role)
	return c
}

func (c *Client) Session() Session { return c.session }

// Subscribe registers fn to run after every local state change. fn runs on
// the goroutine that made the change, never under the client's lock.
func (c *Client) Subscribe(fn func()) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextListen
	c.nextListen++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// BeginFetch cancels the fetch in flight, if any, and returns the token of the
// new one.
func (c *Client) BeginFetch(ctx context.Context, opts FetchOptions) *FetchToken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	fctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if !opts.Silent {
		c.loading = true
	}
	return &FetchToken{gen: c.gen, ctx: fctx, cancel: cancel}
}

// Commit applies a fetch result if tok is still the newest token. An empty
// counterpartID replaces the whole message set; otherwise only that
// counterpart's messages are replaced.
func (c *Client) Commit(tok *FetchToken, counterpartID string, msgs []messaging.Message) bool {
	defer tok.cancel()

	c.mu.Lock()
	if tok.gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.replaceLocked(counterpartID, msgs, tok.gen)
	c.loading = false
	c.cancel = nil
	c.mu.Unlock()

	c.changed()
	return true
}

func (c *Client) abandon(tok *FetchToken) (current, wasLoading bool) {
	defer tok.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok.gen != c.gen {
		return false, false
	}
	wasLoading = c.loading
	c.loading = false
	c.cancel = nil
	return true, wasLoading
}

// Fetch refreshes the conversation with counterpartID. A result that arrives
// after a newer fetch began is dropped and ErrSuperseded returned. Transport
// failures leave state untouched and are not retried.
func (c *Client) Fetch(ctx context.Context, counterpartID string, opts FetchOptions) ([]messaging.Message, error) {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return nil, ErrNoCounterpart
	}
	tok := c.BeginFetch(ctx, opts)
	msgs, err := c.transport.List(tok.Context(), counterpartID)
	if err := c.complete(tok, counterpartID, msgs, err); err != nil {
		return nil, err
	}
	return c.MessagesWith(counterpartID), nil
}

// FetchAll refreshes every conversation the session takes part in.
func (c *Client) FetchAll(ctx context.Context, opts FetchOptions) ([]messaging.Message, error) {
	tok := c.BeginFetch(ctx, opts)
	msgs, err := c.transport.ListAll(tok.Context())
	if err := c.complete(tok, "", msgs, err); err != nil {
		return nil, err
	}
	return c.Messages(), nil
}

func (c *Client) complete(tok *FetchToken, scope string, msgs []messaging.Message, err error) error {
	if err != nil {
		current, wasLoading := c.abandon(tok)
		if wasLoading {
			c.changed()
		}
		switch {
		case !current:
			return ErrSuperseded
		case errors.Is(err, context.Canceled):
			c.log.Debug("fetch cancelled", "counterpart", scope)
			return err
		default:
			c.log.Warn("fetch messages failed", "counterpart", scope, "error", err)
			return fmt.Errorf("fetch messages: %w", err)
		}
	}
	if !c.Commit(tok, scope, msgs) {
		c.log.Debug("discarding stale fetch result", "counterpart", scope)
		return ErrSuperseded
	}
	return nil
}

// Send runs the optimistic send protocol: validate, show a placeholder at
// once, create on the server, then reconcile with a silent fetch. On failure
// the placeholder is removed, an error notice raised and the error returned
// so the caller can restore its input.
func (c *Client) Send(ctx context.Context, counterpartID, body, contextID string) error {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return ErrNoCounterpart
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyBody
	}

	key := messaging.KeyFor(c.session.Role, c.session.SelfID, counterpartID)
	placeholder := messaging.Message{
		ID:           tempIDPrefix + c.newID(),
		CustomerID:   key.CustomerID,
		ProviderID:   key.ProviderID,
		SenderRole:   c.session.Role,
		SenderName:   c.session.SelfName,
		Body:         body,
		ContextID:    strings.TrimSpace(contextID),
		CreatedAt:    c.now(),
		IsOptimistic: true,
	}

	c.mu.Lock()
	c.msgs = append(c.msgs, placeholder)
	c.pending[placeholder.ID] = true
	c.mu.Unlock()
	c.changed()

	created, err := c.transport.Send(ctx, messaging.SendRequest{
		CounterpartID: counterpartID,
		Body:          body,
		ContextID:     placeholder.ContextID,
	})

	c.mu.Lock()
	delete(c.pending, placeholder.ID)
	c.removeLocked(placeholder.ID)
	// a cancelled caller has dropped this state already
	if err == nil && ctx.Err() == nil && created != nil && created.ID != "" && !c.hasLocked(created.ID) {
		confirmed := *created
		confirmed.IsOptimistic = false
		c.msgs = append(c.msgs, confirmed)
		messaging.SortMessages(c.msgs)
	}
	c.mu.Unlock()
	c.changed()

	if err != nil {
		if ctx.Err() != nil {
			c.log.Debug("send cancelled", "counterpart", counterpartID)
			return fmt.Errorf("send message: %w", err)
		}
		c.log.Warn("send message failed", "counterpart", counterpartID, "error", err)
		c.notify(NoticeError, "Failed to send message. Please try again.")
		return fmt.Errorf("send message: %w", err)
	}

	if ctx.Err() != nil {
		return nil
	}
	if _, err := c.Fetch(ctx, counterpartID, FetchOptions{Silent: true}); err != nil && !IsCancellation(err) {
		c.log.Debug("reconcile after send failed", "counterpart", counterpartID, "error", err)
	}
	return nil
}

// Delete removes a confirmed message locally at once, then on the server. If
// the server refuses, the message's conversation is refetched; server state
// wins. An id the client never held is not resynced.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" || strings.HasPrefix(messageID, tempIDPrefix) {
		return ErrNotDeletable
	}

	c.mu.Lock()
	var counterpart string
	if m, ok := c.findLocked(messageID); ok {
		if m.IsOptimistic {
			c.mu.Unlock()
			return ErrNotDeletable
		}
		counterpart = m.CounterpartID(c.session.Role)
	}
	c.removeLocked(messageID)
	c.tombstones[messageID] = tombstone{}
	c.mu.Unlock()
	c.changed()

	if err := c.transport.Delete(ctx, messageID); err != nil {
		c.mu.Lock()
		delete(c.tombstones, messageID)
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.log.Debug("delete cancelled", "message", messageID)
			return fmt.Errorf("delete message: %w", err)
		}
		c.log.Warn("delete message failed", "message", messageID, "error", err)
		c.notify(NoticeError, "Failed to delete message.")
		if counterpart != "" {
			c.resync(ctx, counterpart)
		}
		return fmt.Errorf("delete message: %w", err)
	}

	c.mu.Lock()
	c.tombstones[messageID] = tombstone{done: true, gen: c.gen}
	c.mu.Unlock()
	return nil
}

func (c *Client) resync(ctx context.Context, counterpartID string) {
	if _, err := c.Fetch(ctx, counterpartID, FetchOptions{Silent: true}); err != nil && !IsCancellation(err) {
		c.log.Debug("resync failed", "counterpart", counterpartID, "error", err)
	}
}

// Clear deletes the whole conversation with counterpartID. Local state is
// only touched once the server agrees; there is no partial clear.
func (c *Client) Clear(ctx context.Context, counterpartID string) error {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return ErrNoCounterpart
	}

	if err := c.transport.DeleteConversation(ctx, counterpartID); err != nil {
		c.log.Warn("clear conversation failed", "counterpart", counterpartID, "error", err)
		c.notify(NoticeError, "Failed to clear conversation.")
		return fmt.Errorf("clear conversation: %w", err)
	}

	c.mu.Lock()
	// a fetch in flight may still carry the cleared messages
	c.invalidateLocked()
	kept := c.msgs[:0]
	for _, m := range c.msgs {
		if m.CounterpartID(c.session.Role) == counterpartID {
			delete(c.pending, m.ID)
			continue
		}
		kept = append(kept, m)
	}
	c.msgs = kept
	delete(c.readMarks, counterpartID)
	c.mu.Unlock()
	c.changed()
	return nil
}

// MarkRead flips counterpart-authored messages of one conversation to read.
// Local only: the flag survives later fetches through a read mark but is not
// sent to the server. Returns how many messages changed.
func (c *Client) MarkRead(counterpartID string) int {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return 0
	}

	c.mu.Lock()
	n := 0
	newest := c.readMarks[counterpartID]
	for i := range c.msgs {
		m := &c.msgs[i]
		if m.IsOptimistic || m.SenderRole == c.session.Role || m.CounterpartID(c.session.Role) != counterpartID {
			continue
		}
		if !m.IsRead {
			m.IsRead = true
			n++
		}
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}
	if !newest.IsZero() {
		c.readMarks[counterpartID] = newest
	}
	c.mu.Unlock()

	if n > 0 {
		c.changed()
	}
	return n
}

// Reset drops all local state and abandons the fetch in flight.
func (c *Client) Reset() {
	c.mu.Lock()
	c.invalidateLocked()
	c.msgs = nil
	c.pending = make(map[string]bool)
	c.tombstones = make(map[string]tombstone)
	c.readMarks = make(map[string]time.Time)
	c.mu.Unlock()
	c.changed()
}

func (c *Client) Messages() []messaging.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]messaging.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *Client) MessagesWith(counterpartID string) []messaging.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]messaging.Message, 0, len(c.msgs))
	for _, m := range c.msgs {
		if m.CounterpartID(c.session.Role) == counterpartID {
			out = append(out, m)
		}
	}
	return out
}

func (c *Client) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return messaging.UnreadCount(c.msgs, c.session.Role)
}

func (c *Client) UnreadFor(counterpartID string) int {
	return messaging.UnreadCount(c.MessagesWith(counterpartID), c.session.Role)
}

func (c *Client) Conversations() []messaging.Summary {
	return messaging.CollapseConversations(c.Messages(), c.session.Role)
}

func (c *Client) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Client) invalidateLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.loading = false
}

func (c *Client) replaceLocked(scope string, server []messaging.Message, gen uint64) {
	for id, ts := range c.tombstones {
		if ts.done && gen > ts.gen {
			delete(c.tombstones, id)
		}
	}

	next := make([]messaging.Message, 0, len(server)+len(c.msgs))
	if scope != "" {
		for _, m := range c.msgs {
			if !m.IsOptimistic && m.CounterpartID(c.session.Role) != scope {
				next = append(next, m)
			}
		}
	}
	for _, m := range server {
		if _, gone := c.tombstones[m.ID]; gone {
			continue
		}
		m.IsOptimistic = false
		if m.SenderRole != c.session.Role {
			if mark, ok := c.readMarks[m.CounterpartID(c.session.Role)]; ok && !m.CreatedAt.After(mark) {
				m.IsRead = true
			}
		}
		next = append(next, m)
	}
	for _, m := range c.msgs {
		if m.IsOptimistic && c.pending[m.ID] {
			next = append(next, m)
		}
	}
	messaging.SortMessages(next)
	c.msgs = next
}

func (c *Client) findLocked(id string) (messaging.Message, bool) {
	for _, m := range c.msgs {
		if m.ID == id {
			return m, true
		}
	}
	return messaging.Message{}, false
}

func (c *Client) hasLocked(id string) bool {
	_, ok := c.findLocked(id)
	return ok
}

func (c *Client) removeLocked(id string) {
	for i, m := range c.msgs {
		if m.ID == id {
			c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
			return
		}
	}
}

func (c *Client) notify(kind NoticeKind, text string) {
	if c.notifier != nil {
		c.notifier.Notify(Notice{Kind: kind, Text: text})
	}
}

func (c *Client) changed() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

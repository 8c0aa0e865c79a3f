// Package inbox is the provider's view over every conversation at once: a
// collapsed conversation list, aggregate unread count, transient new-message
// alerts and the thread of the selected conversation.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/Vovarama1992/market-messaging/internal/convo"
	"github.com/Vovarama1992/market-messaging/internal/feed"
	"github.com/Vovarama1992/market-messaging/internal/messaging"
	"github.com/Vovarama1992/market-messaging/internal/platform/logger"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultAlertTTL     = 5 * time.Second
)

var ErrNoSelection = errors.New("no conversation selected")

type Options struct {
	// Source schedules background polls; defaults to a 5s interval.
	Source   feed.Source
	Confirm  convo.Confirmer
	AlertTTL time.Duration
	Log      *logger.Logger

	OnChange func(Snapshot)
	OnAlert  func(Alert)
}

// Alert is the transient new-message notification.
type Alert struct {
	Text         string
	Counterparts []string
	RaisedAt     time.Time
}

type Inbox struct {
	client *convo.Client
	opts   Options
	log    *logger.Logger

	mu       sync.Mutex
	epoch    uint64
	stop     context.CancelFunc
	loopDone chan struct{}
	selected string
	unread   map[string]int
	total    int
	// baseline is what the last poll saw; only polls raise it
	baseline map[string]int
	// scope ends on Reset so writes in flight are cancelled with the state
	scope    context.Context
	endScope context.CancelFunc
	alert    *Alert
	alertSeq uint64
	timer    *time.Timer
}

func New(client *convo.Client, opts Options) *Inbox {
	if opts.Source == nil {
		opts.Source = feed.Interval{Every: DefaultPollInterval}
	}
	if opts.AlertTTL <= 0 {
		opts.AlertTTL = DefaultAlertTTL
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	in := &Inbox{
		client:   client,
		opts:     opts,
		log:      opts.Log.With("component", "inbox"),
		unread:   make(map[string]int),
		baseline: make(map[string]int),
	}
	in.scope, in.endScope = context.WithCancel(context.Background())
	client.Subscribe(in.emit)
	return in
}

// Start polls once right away and then on every tick of the source until
// Stop. Starting a running inbox does nothing.
func (in *Inbox) Start(ctx context.Context) {
	in.mu.Lock()
	if in.stop != nil {
		in.mu.Unlock()
		return
	}
	in.epoch++
	epoch := in.epoch
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	in.stop, in.loopDone = cancel, done
	in.mu.Unlock()

	go func() {
		defer close(done)
		in.tick(runCtx, epoch)
		_ = in.opts.Source.Run(runCtx, func(tickCtx context.Context) { in.tick(tickCtx, epoch) })
	}()
}

// Stop ends polling and waits for the loop to exit. Safe to call twice.
func (in *Inbox) Stop() {
	in.mu.Lock()
	stop, done := in.stop, in.loopDone
	in.stop, in.loopDone = nil, nil
	in.epoch++
	in.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
}

func (in *Inbox) Running() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stop != nil
}

func (in *Inbox) tick(ctx context.Context, epoch uint64) {
	in.mu.Lock()
	current := in.epoch == epoch
	in.mu.Unlock()
	if !current || ctx.Err() != nil {
		return
	}
	// background failures stay quiet
	if err := in.Poll(ctx); err != nil && !convo.IsCancellation(err) {
		in.log.Debug("poll failed", "error", err)
	}
}

// Poll refreshes every conversation silently and raises an alert when the
// total unread count grew since the previous poll.
func (in *Inbox) Poll(ctx context.Context) error {
	if _, err := in.client.FetchAll(ctx, convo.FetchOptions{Silent: true}); err != nil {
		return err
	}
	in.recount(true)
	return nil
}

// recount refreshes the unread counts. A poll compares against the previous
// poll's counts and alerts on growth. Other callers may only lower that
// baseline, so unread mail a write's refetch brings in still alerts on the
// next poll.
func (in *Inbox) recount(poll bool) {
	convs := in.client.Conversations()
	counts := make(map[string]int, len(convs))
	total := 0
	for _, c := range convs {
		counts[c.CounterpartID] = c.Unread
		total += c.Unread
	}

	in.mu.Lock()
	var grown []string
	if poll {
		if total > sum(in.baseline) {
			for _, c := range convs {
				if c.Unread > in.baseline[c.CounterpartID] {
					grown = append(grown, c.CounterpartName)
				}
			}
		}
		in.baseline = maps.Clone(counts)
	} else {
		for id, n := range in.baseline {
			if counts[id] < n {
				in.baseline[id] = counts[id]
			}
		}
	}
	in.unread = counts
	in.total = total
	in.mu.Unlock()

	if len(grown) > 0 {
		in.raise(grown)
	}
}

func sum(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

// write binds ctx to the current scope.
func (in *Inbox) write(ctx context.Context) (context.Context, context.CancelFunc) {
	in.mu.Lock()
	scope := in.scope
	in.mu.Unlock()
	return convo.Within(ctx, scope)
}

func alertText(names []string) string {
	if len(names) == 1 {
		return "New message from " + names[0]
	}
	return fmt.Sprintf("%d new conversations with unread messages", len(names))
}

func (in *Inbox) raise(names []string) {
	a := Alert{Text: alertText(names), Counterparts: names, RaisedAt: time.Now()}

	in.mu.Lock()
	in.alertSeq++
	seq := in.alertSeq
	in.alert = &a
	if in.timer != nil {
		in.timer.Stop()
	}
	in.timer = time.AfterFunc(in.opts.AlertTTL, func() { in.dismiss(seq) })
	in.mu.Unlock()

	in.log.Info("new message alert", "conversations", len(names))
	if in.opts.OnAlert != nil {
		in.opts.OnAlert(a)
	}
	in.emit()
}

func (in *Inbox) dismiss(seq uint64) {
	in.mu.Lock()
	if in.alertSeq != seq || in.alert == nil {
		in.mu.Unlock()
		return
	}
	in.alert = nil
	in.mu.Unlock()
	in.emit()
}

// DismissAlert hides the current alert before its timeout.
func (in *Inbox) DismissAlert() {
	in.mu.Lock()
	seq := in.alertSeq
	in.mu.Unlock()
	in.dismiss(seq)
}

func (in *Inbox) Alert() (Alert, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.alert == nil {
		return Alert{}, false
	}
	return *in.alert, true
}

// Select opens a conversation and marks it read locally.
func (in *Inbox) Select(counterpartID string) error {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return convo.ErrNoCounterpart
	}
	in.mu.Lock()
	in.selected = counterpartID
	in.mu.Unlock()

	in.client.MarkRead(counterpartID)
	in.recount(false)
	in.emit()
	return nil
}

func (in *Inbox) Deselect() {
	in.mu.Lock()
	in.selected = ""
	in.mu.Unlock()
	in.emit()
}

func (in *Inbox) Selected() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.selected
}

// Thread is the selected conversation, oldest first.
func (in *Inbox) Thread() []messaging.Message {
	cp := in.Selected()
	if cp == "" {
		return nil
	}
	return in.client.MessagesWith(cp)
}

func (in *Inbox) UnreadTotal() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.total
}

// DeleteConversation clears one conversation after confirmation.
func (in *Inbox) DeleteConversation(ctx context.Context, counterpartID string) error {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return convo.ErrNoCounterpart
	}
	if in.opts.Confirm == nil || !in.opts.Confirm.Confirm(convo.PromptClearConversation) {
		return convo.ErrDeclined
	}
	ctx, cancel := in.write(ctx)
	defer cancel()
	if err := in.client.Clear(ctx, counterpartID); err != nil {
		return err
	}

	in.mu.Lock()
	if in.selected == counterpartID {
		in.selected = ""
	}
	in.mu.Unlock()
	in.recount(false)
	in.emit()
	return nil
}

// DeleteMessage removes one message of the selected thread after confirmation.
func (in *Inbox) DeleteMessage(ctx context.Context, messageID string) error {
	if in.opts.Confirm == nil || !in.opts.Confirm.Confirm(convo.PromptDeleteMessage) {
		return convo.ErrDeclined
	}
	ctx, cancel := in.write(ctx)
	defer cancel()
	err := in.client.Delete(ctx, messageID)
	in.recount(false)
	return err
}

// Send replies in the selected conversation.
func (in *Inbox) Send(ctx context.Context, body string) error {
	cp := in.Selected()
	if cp == "" {
		return ErrNoSelection
	}
	ctx, cancel := in.write(ctx)
	defer cancel()
	err := in.client.Send(ctx, cp, body, "")
	in.recount(false)
	return err
}

// HandleVisibility resets everything when the inbox becomes visible again so
// no stale data from an earlier session is shown.
func (in *Inbox) HandleVisibility(visible bool) {
	if visible {
		in.Reset()
	}
}

// Unload stops polling and drops all state.
func (in *Inbox) Unload() {
	in.Stop()
	in.Reset()
}

// Reset empties the conversation set, selection, unread counts and alert, and
// cancels writes in flight. Polling, if running, carries on from scratch.
func (in *Inbox) Reset() {
	in.mu.Lock()
	in.selected = ""
	in.unread = make(map[string]int)
	in.baseline = make(map[string]int)
	in.total = 0
	in.endScope()
	in.scope, in.endScope = context.WithCancel(context.Background())
	in.alert = nil
	in.alertSeq++
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
	in.mu.Unlock()

	in.client.Reset()
}

func (in *Inbox) emit() {
	if in.opts.OnChange != nil {
		in.opts.OnChange(in.Snapshot())
	}
}

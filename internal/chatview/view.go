// Package chatview drives one conversation between the session and a single
// counterpart: open, poll, send, delete, clear and close.
package chatview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Vovarama1992/market-messaging/internal/convo"
	"github.com/Vovarama1992/market-messaging/internal/feed"
	"github.com/Vovarama1992/market-messaging/internal/messaging"
	"github.com/Vovarama1992/market-messaging/internal/platform/logger"
)

type Status int

const (
	StatusClosed Status = iota
	StatusLoading
	StatusActive
	StatusSending
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusActive:
		return "active"
	case StatusSending:
		return "sending"
	default:
		return "closed"
	}
}

// Counterpart is who the conversation is with. ContextID is the listing the
// conversation started from, attached to every message sent.
type Counterpart struct {
	ID        string
	Name      string
	ContextID string
}

var (
	ErrNotActive = errors.New("chat view is not open")
	ErrBusy      = errors.New("a message is still being sent")
)

type Options struct {
	// Source schedules silent refreshes; defaults to a 3s interval.
	Source  feed.Source
	Confirm convo.Confirmer
	Log     *logger.Logger
	// Location formats message times; defaults to time.Local.
	Location *time.Location

	OnChange func(Snapshot)
	// OnScroll fires whenever the conversation grows.
	OnScroll func()
	OnClose  func()
}

// View is one chat window. It owns its Client; two views never share one.
type View struct {
	client *convo.Client
	opts   Options
	log    *logger.Logger

	mu        sync.Mutex
	status    Status
	cp        Counterpart
	draft     string
	cycle     uint64
	runCtx    context.Context
	stop      context.CancelFunc
	loopDone  chan struct{}
	lastCount int
	scrollSeq int
}

func New(client *convo.Client, opts Options) *View {
	if opts.Source == nil {
		opts.Source = feed.Interval{Every: feed.DefaultInterval}
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	v := &View{
		client: client,
		opts:   opts,
		log:    opts.Log.With("component", "chatview"),
	}
	client.Subscribe(v.onClientChange)
	return v
}

// Open shows the conversation with cp. The first fetch is visible; every
// later refresh is silent. Opening an open view closes it first.
func (v *View) Open(ctx context.Context, cp Counterpart) error {
	cp.ID = strings.TrimSpace(cp.ID)
	if cp.ID == "" {
		return convo.ErrNoCounterpart
	}
	if strings.TrimSpace(cp.Name) == "" {
		cp.Name = messaging.DefaultName(v.client.Session().Role.Other(), cp.ID)
	}
	v.Close()

	v.mu.Lock()
	v.cycle++
	cycle := v.cycle
	cycleCtx, cancel := context.WithCancel(ctx)
	v.runCtx, v.stop = cycleCtx, cancel
	v.status = StatusLoading
	v.cp = cp
	v.draft = ""
	v.lastCount = 0
	v.mu.Unlock()
	v.emit()

	if _, err := v.client.Fetch(cycleCtx, cp.ID, convo.FetchOptions{}); err != nil && !convo.IsCancellation(err) {
		v.log.Warn("initial fetch failed", "counterpart", cp.ID, "error", err)
	}

	v.mu.Lock()
	if v.cycle != cycle {
		v.mu.Unlock()
		return ErrNotActive
	}
	v.status = StatusActive
	done := make(chan struct{})
	v.loopDone = done
	v.mu.Unlock()

	go func() {
		defer close(done)
		_ = v.opts.Source.Run(cycleCtx, func(tickCtx context.Context) { v.tick(tickCtx, cycle) })
	}()
	v.log.Debug("chat opened", "counterpart", cp.ID)
	v.emit()
	return nil
}

func (v *View) tick(ctx context.Context, cycle uint64) {
	v.mu.Lock()
	if v.cycle != cycle || v.status == StatusClosed {
		v.mu.Unlock()
		return
	}
	cpID := v.cp.ID
	v.mu.Unlock()

	if _, err := v.client.Fetch(ctx, cpID, convo.FetchOptions{Silent: true}); err != nil && !convo.IsCancellation(err) {
		v.log.Debug("poll failed", "counterpart", cpID, "error", err)
	}
}

// SetDraft replaces the input text. Ignored while the input is disabled.
func (v *View) SetDraft(text string) {
	v.mu.Lock()
	if v.status != StatusActive && v.status != StatusLoading {
		v.mu.Unlock()
		return
	}
	v.draft = text
	v.mu.Unlock()
	v.emit()
}

// Submit sends the draft. The input is cleared and disabled while sending and
// the draft comes back if the send fails. Close cancels a send in flight.
func (v *View) Submit(ctx context.Context) error {
	v.mu.Lock()
	switch v.status {
	case StatusActive:
	case StatusSending:
		v.mu.Unlock()
		return ErrBusy
	default:
		v.mu.Unlock()
		return ErrNotActive
	}
	body := v.draft
	if strings.TrimSpace(body) == "" {
		v.mu.Unlock()
		return convo.ErrEmptyBody
	}
	cycle := v.cycle
	cp := v.cp
	ctx, cancel := convo.Within(ctx, v.runCtx)
	defer cancel()
	v.status = StatusSending
	v.draft = ""
	v.mu.Unlock()
	v.emit()

	err := v.client.Send(ctx, cp.ID, body, cp.ContextID)

	v.mu.Lock()
	if v.cycle == cycle {
		v.status = StatusActive
		if err != nil {
			v.draft = body
		}
	}
	v.mu.Unlock()
	v.emit()
	return err
}

func (v *View) DeleteMessage(ctx context.Context, messageID string) error {
	_, runCtx, ok := v.activeCounterpart()
	if !ok {
		return ErrNotActive
	}
	if !v.confirm(convo.PromptDeleteMessage) {
		return convo.ErrDeclined
	}
	ctx, cancel := convo.Within(ctx, runCtx)
	defer cancel()
	return v.client.Delete(ctx, messageID)
}

// ClearConversation deletes the whole conversation and closes the view.
func (v *View) ClearConversation(ctx context.Context) error {
	cp, runCtx, ok := v.activeCounterpart()
	if !ok {
		return ErrNotActive
	}
	if !v.confirm(convo.PromptClearConversation) {
		return convo.ErrDeclined
	}
	ctx, cancel := convo.Within(ctx, runCtx)
	defer cancel()
	if err := v.client.Clear(ctx, cp.ID); err != nil {
		return err
	}
	v.Close()
	return nil
}

// Close stops polling, cancels the requests in flight and drops all state. It
// waits for the poll loop to exit and is safe to call more than once.
func (v *View) Close() {
	v.mu.Lock()
	if v.status == StatusClosed && v.stop == nil {
		v.mu.Unlock()
		return
	}
	stop, done := v.stop, v.loopDone
	v.stop, v.loopDone = nil, nil
	v.status = StatusClosed
	v.cycle++
	v.draft = ""
	v.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
	v.client.Reset()
	v.log.Debug("chat closed")

	if v.opts.OnClose != nil {
		v.opts.OnClose()
	}
	v.emit()
}

func (v *View) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// activeCounterpart returns the open conversation and its cycle context.
func (v *View) activeCounterpart() (Counterpart, context.Context, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.status != StatusActive && v.status != StatusSending {
		return Counterpart{}, nil, false
	}
	return v.cp, v.runCtx, true
}

func (v *View) confirm(prompt string) bool {
	if v.opts.Confirm == nil {
		return false
	}
	return v.opts.Confirm.Confirm(prompt)
}

func (v *View) onClientChange() {
	v.mu.Lock()
	if v.status == StatusClosed {
		v.mu.Unlock()
		return
	}
	cpID := v.cp.ID
	v.mu.Unlock()

	n := len(v.client.MessagesWith(cpID))

	v.mu.Lock()
	grew := n > v.lastCount
	v.lastCount = n
	if grew {
		v.scrollSeq++
	}
	v.mu.Unlock()

	if grew && v.opts.OnScroll != nil {
		v.opts.OnScroll()
	}
	v.emit()
}

func (v *View) emit() {
	if v.opts.OnChange != nil {
		v.opts.OnChange(v.Snapshot())
	}
}

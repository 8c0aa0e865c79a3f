// Package feed decides when a view refreshes. Views hand a Source their
// refresh function and never learn whether ticks come from a timer or from
// the service's event stream.
package feed

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/Vovarama1992/market-messaging/internal/platform/logger"
)

const (
	DefaultInterval   = 3 * time.Second
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// Source calls tick whenever the view should refresh. Run blocks until ctx is
// done and never calls tick after that. Ticks are serial.
type Source interface {
	Run(ctx context.Context, tick func(context.Context)) error
}

// Interval polls on a fixed period.
type Interval struct {
	Every time.Duration
}

func (s Interval) Run(ctx context.Context, tick func(context.Context)) error {
	every := s.Every
	if every <= 0 {
		every = DefaultInterval
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if ctx.Err() != nil {
				return nil
			}
			tick(ctx)
		}
	}
}

// StreamOpener opens a server-sent event stream. convo.HTTPTransport is one.
type StreamOpener interface {
	OpenStream(ctx context.Context) (io.ReadCloser, error)
}

type StreamOpenerFunc func(ctx context.Context) (io.ReadCloser, error)

func (f StreamOpenerFunc) OpenStream(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

// Push ticks once per event on the stream, and once on every (re)connect to
// pick up what was missed. While the stream is down it reconnects with
// exponential backoff and ticks every Fallback in between.
type Push struct {
	Stream     StreamOpener
	Fallback   time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Log        *logger.Logger
}

func (p Push) Run(ctx context.Context, tick func(context.Context)) error {
	log := p.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "feed.push")

	minBackoff, maxBackoff := p.MinBackoff, p.MaxBackoff
	if minBackoff <= 0 {
		minBackoff = DefaultMinBackoff
	}
	if maxBackoff < minBackoff {
		maxBackoff = max(DefaultMaxBackoff, minBackoff)
	}
	every := p.Fallback
	if every <= 0 {
		every = DefaultInterval
	}

	// nil while connected
	var fallback *time.Ticker
	defer func() {
		if fallback != nil {
			fallback.Stop()
		}
	}()

	backoff := minBackoff
	for ctx.Err() == nil {
		body, err := p.Stream.OpenStream(ctx)
		if err == nil {
			if fallback != nil {
				fallback.Stop()
				fallback = nil
			}
			backoff = minBackoff
			log.Debug("event stream connected")
			tick(ctx)

			err = consume(ctx, body, tick)
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("event stream lost", "error", err)
		} else if ctx.Err() == nil {
			log.Warn("event stream unavailable", "error", err, "retry_in", backoff)
		}

		if fallback == nil {
			fallback = time.NewTicker(every)
		}
		if !wait(ctx, backoff, fallback.C, tick) {
			return nil
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil
}

func wait(ctx context.Context, d time.Duration, ticks <-chan time.Time, tick func(context.Context)) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-ticks:
			if ctx.Err() != nil {
				return false
			}
			tick(ctx)
		}
	}
}

// consume reads the stream until it ends, ticking on each dispatched event.
// Comment lines (heartbeats) are ignored.
func consume(ctx context.Context, body io.ReadCloser, tick func(context.Context)) error {
	stop := make(chan struct{})
	defer close(stop)
	defer body.Close()
	go func() {
		select {
		case <-ctx.Done():
			// unblocks the scanner
			_ = body.Close()
		case <-stop:
		}
	}()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var pending bool
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if pending && ctx.Err() == nil {
				tick(ctx)
			}
			pending = false
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "data:"):
			pending = true
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

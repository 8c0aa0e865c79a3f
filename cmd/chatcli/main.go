// Command chatcli is a terminal client for the messaging service. It opens a
// single conversation (thread) or the provider inbox and reads commands from
// stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Vovarama1992/market-messaging/internal/chatview"
	"github.com/Vovarama1992/market-messaging/internal/config"
	"github.com/Vovarama1992/market-messaging/internal/convo"
	"github.com/Vovarama1992/market-messaging/internal/feed"
	"github.com/Vovarama1992/market-messaging/internal/inbox"
	"github.com/Vovarama1992/market-messaging/internal/messaging"
	"github.com/Vovarama1992/market-messaging/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var push bool
	root := &cobra.Command{
		Use:   "chatcli",
		Short: "Talk to the marketplace messaging service from a terminal",
		Long: strings.TrimSpace(`
Reads MESSAGING_URL and MESSAGING_TOKEN from the environment (or .env).
The session identity comes from ROLE, USER_ID and USER_NAME, or from the
token's claims when those are unset.
`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&push, "push", false, "refresh on server events instead of polling")

	root.AddCommand(newThreadCmd(&push))
	root.AddCommand(newInboxCmd(&push))
	root.AddCommand(newTokenCmd())
	return root
}

// env is what every interactive command needs.
type env struct {
	cfg       config.Client
	log       *logger.Logger
	session   convo.Session
	transport *convo.HTTPTransport
	push      bool
}

func loadEnv(push bool) (*env, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	session, err := resolveSession(cfg)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:       cfg,
		log:       log,
		session:   session,
		transport: convo.NewHTTPTransport(cfg.BaseURL, cfg.Token, cfg.RequestTimeout, log),
		push:      push,
	}, nil
}

func resolveSession(cfg config.Client) (convo.Session, error) {
	s := convo.Session{SelfID: cfg.UserID, SelfName: cfg.UserName, Role: cfg.Role}
	if s.SelfID != "" && s.Role != "" {
		return s, nil
	}
	v, err := messaging.PeekViewer(cfg.Token)
	if err != nil {
		return convo.Session{}, fmt.Errorf("set ROLE and USER_ID, or use a token carrying both: %w", err)
	}
	if s.SelfID == "" {
		s.SelfID = v.ID
	}
	if s.Role == "" {
		s.Role = v.Role
	}
	if s.SelfName == "" {
		s.SelfName = v.Name
	}
	return s, nil
}

func (e *env) client(out *printer) *convo.Client {
	return convo.New(e.transport, e.session,
		convo.WithLogger(e.log),
		convo.WithNotifier(convo.NotifierFunc(out.notice)),
	)
}

// source picks the refresh schedule. POLL_INTERVAL overrides every.
func (e *env) source(every time.Duration) feed.Source {
	if e.cfg.PollInterval > 0 {
		every = e.cfg.PollInterval
	}
	if e.push {
		return feed.Push{Stream: e.transport, Fallback: every, Log: e.log}
	}
	return feed.Interval{Every: every}
}

// console turns stdin into a line channel so reads can be abandoned on
// cancellation. It also answers confirmation prompts.
type console struct {
	lines chan string
	out   *printer
}

func newConsole(r io.Reader, out *printer) *console {
	c := &console{lines: make(chan string), out: out}
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			c.lines <- sc.Text()
		}
	}()
	return c
}

// next returns the next input line; false on EOF or cancellation.
func (c *console) next(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-c.lines:
		return line, ok
	}
}

func (c *console) Confirm(prompt string) bool {
	c.out.prompt(prompt + " [y/N] ")
	line, ok := <-c.lines
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// command splits "/name arg" input. Plain text is not a command.
func command(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

// report prints errors the client has not already surfaced as notices.
func report(out *printer, log *logger.Logger, err error) {
	switch {
	case err == nil, errors.Is(err, convo.ErrEmptyBody):
	case errors.Is(err, convo.ErrDeclined):
		out.info("Cancelled.")
	case errors.Is(err, chatview.ErrBusy):
		out.info("Still sending the previous message.")
	case errors.Is(err, chatview.ErrNotActive):
		out.info("The conversation is closed.")
	case errors.Is(err, inbox.ErrNoSelection):
		out.info("Open a conversation first: /open <id>")
	case errors.Is(err, convo.ErrNotDeletable):
		out.info("That message has not been delivered yet.")
	case errors.Is(err, convo.ErrNoCounterpart):
		out.info("Missing conversation id.")
	default:
		log.Debug("command failed", "error", err)
	}
}

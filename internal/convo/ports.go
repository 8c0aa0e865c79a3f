package convo

import (
	"context"
	"errors"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
)

// Session is the identity the client acts as. It is passed in explicitly at
// construction; the client never reads ambient storage.
type Session struct {
	SelfID   string
	SelfName string
	Role     messaging.Role
}

// Transport: the Messaging Service as seen by the client
type Transport interface {
	List(ctx context.Context, counterpartID string) ([]messaging.Message, error)
	ListAll(ctx context.Context) ([]messaging.Message, error)
	Send(ctx context.Context, req messaging.SendRequest) (*messaging.Message, error)
	Delete(ctx context.Context, messageID string) error
	DeleteConversation(ctx context.Context, counterpartID string) error
}

type NoticeKind string

const (
	NoticeError NoticeKind = "error"
	NoticeAlert NoticeKind = "alert"
)

// Notice is a user-facing message: failed writes and new-message alerts.
type Notice struct {
	Kind NoticeKind
	Text string
}

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

const (
	PromptDeleteMessage     = "Delete this message?"
	PromptClearConversation = "Delete entire conversation? This cannot be undone."
)

type FetchOptions struct {
	// Silent refreshes without raising the loading flag (background polls).
	Silent bool
}

var (
	ErrEmptyBody     = messaging.ErrEmptyBody
	ErrNoCounterpart = messaging.ErrNoCounterpart
	ErrSuperseded    = errors.New("fetch superseded by a newer fetch")
	ErrNotDeletable  = errors.New("message has no server identity yet")
	ErrDeclined      = errors.New("action not confirmed")
)

// IsCancellation reports whether err only means a fetch was abandoned, either
// superseded or cancelled by its caller. Such errors are never shown to users.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled)
}

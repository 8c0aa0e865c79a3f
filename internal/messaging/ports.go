package messaging

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleProvider
}

// Other returns the role on the opposite side of a conversation.
func (r Role) Other() Role {
	if r == RoleProvider {
		return RoleCustomer
	}
	return RoleProvider
}

type Message struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	ProviderID string    `json:"providerId"`
	SenderRole Role      `json:"senderRole"`
	SenderName string    `json:"senderName,omitempty"`
	Body       string    `json:"body"`
	ContextID  string    `json:"contextId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	IsRead     bool      `json:"isRead"`

	// IsOptimistic marks a local placeholder the server has not confirmed.
	IsOptimistic bool `json:"-"`
}

// Key identifies a conversation: one customer, one provider.
type Key struct {
	CustomerID string
	ProviderID string
}

// SendRequest is the body of POST /api/messages.
type SendRequest struct {
	CounterpartID string `json:"counterpartId"`
	Body          string `json:"body"`
	ContextID     string `json:"contextId,omitempty"`
}

// Viewer is the authenticated caller of the service.
type Viewer struct {
	ID   string
	Role Role
	Name string
}

var (
	ErrNotFound      = errors.New("message not found")
	ErrEmptyBody     = errors.New("message body is empty")
	ErrNoCounterpart = errors.New("counterpart id is required")
	ErrBadRole       = errors.New("role must be customer or provider")
)

// Repo: persistence
type Repo interface {
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListConversation(ctx context.Context, key Key) ([]Message, error)
	ListForParticipant(ctx context.Context, role Role, userID string) ([]Message, error)
	DeleteMessage(ctx context.Context, id string) error
	DeleteConversation(ctx context.Context, key Key) (int64, error)
}

// Publisher fans message events out to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type EventType string

const (
	EventMessageCreated      EventType = "message.created"
	EventMessageDeleted      EventType = "message.deleted"
	EventConversationCleared EventType = "conversation.cleared"
)

// Event is delivered to both participants of the conversation it concerns.
type Event struct {
	Type       EventType `json:"type"`
	CustomerID string    `json:"customerId"`
	ProviderID string    `json:"providerId"`
	MessageID  string    `json:"messageId,omitempty"`
}

// Service: use cases behind the REST handlers
type Service interface {
	Conversation(ctx context.Context, viewer Viewer, counterpartID string) ([]Message, error)
	Inbox(ctx context.Context, viewer Viewer) ([]Message, error)
	Send(ctx context.Context, viewer Viewer, req SendRequest) (*Message, error)
	DeleteMessage(ctx context.Context, viewer Viewer, messageID string) error
	ClearConversation(ctx context.Context, viewer Viewer, counterpartID string) (int64, error)
}

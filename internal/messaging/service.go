package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Vovarama1992/market-messaging/internal/platform/logger"
)

type service struct {
	repo Repo
	pub  Publisher
	log  *logger.Logger
	now  func() time.Time
}

// NewService wires the use cases. pub may be nil when no realtime delivery is
// configured.
func NewService(repo Repo, pub Publisher, log *logger.Logger) Service {
	if log == nil {
		log = logger.Nop()
	}
	return &service{
		repo: repo,
		pub:  pub,
		log:  log.With("component", "messaging.service"),
		now:  time.Now,
	}
}

func (s *service) Conversation(ctx context.Context, viewer Viewer, counterpartID string) ([]Message, error) {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return nil, ErrNoCounterpart
	}
	msgs, err := s.repo.ListConversation(ctx, KeyFor(viewer.Role, viewer.ID, counterpartID))
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return nonNil(msgs), nil
}

func (s *service) Inbox(ctx context.Context, viewer Viewer) ([]Message, error) {
	msgs, err := s.repo.ListForParticipant(ctx, viewer.Role, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return nonNil(msgs), nil
}

func (s *service) Send(ctx context.Context, viewer Viewer, req SendRequest) (*Message, error) {
	cp := strings.TrimSpace(req.CounterpartID)
	if cp == "" {
		return nil, ErrNoCounterpart
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, ErrEmptyBody
	}

	key := KeyFor(viewer.Role, viewer.ID, cp)
	msg := &Message{
		ID:         uuid.NewString(),
		CustomerID: key.CustomerID,
		ProviderID: key.ProviderID,
		SenderRole: viewer.Role,
		SenderName: viewer.Name,
		Body:       req.Body,
		ContextID:  strings.TrimSpace(req.ContextID),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	s.log.Debug("message stored", "message", msg.ID, "sender_role", msg.SenderRole)

	s.publish(ctx, Event{Type: EventMessageCreated, CustomerID: key.CustomerID, ProviderID: key.ProviderID, MessageID: msg.ID})
	return msg, nil
}

func (s *service) DeleteMessage(ctx context.Context, viewer Viewer, messageID string) error {
	msg, err := s.repo.GetMessage(ctx, strings.TrimSpace(messageID))
	if err != nil {
		return err
	}
	// Foreign messages look exactly like missing ones.
	if !participates(*msg, viewer) {
		return ErrNotFound
	}
	if err := s.repo.DeleteMessage(ctx, msg.ID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.publish(ctx, Event{Type: EventMessageDeleted, CustomerID: msg.CustomerID, ProviderID: msg.ProviderID, MessageID: msg.ID})
	return nil
}

func (s *service) ClearConversation(ctx context.Context, viewer Viewer, counterpartID string) (int64, error) {
	counterpartID = strings.TrimSpace(counterpartID)
	if counterpartID == "" {
		return 0, ErrNoCounterpart
	}
	key := KeyFor(viewer.Role, viewer.ID, counterpartID)
	n, err := s.repo.DeleteConversation(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	s.log.Info("conversation cleared", "deleted", n)
	s.publish(ctx, Event{Type: EventConversationCleared, CustomerID: key.CustomerID, ProviderID: key.ProviderID})
	return n, nil
}

// Delivery is best effort: a failed publish never fails the write.
func (s *service) publish(ctx context.Context, ev Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed", "event", ev.Type, "error", err)
	}
}

func participates(m Message, v Viewer) bool {
	if v.Role == RoleProvider {
		return m.ProviderID == v.ID
	}
	return m.CustomerID == v.ID
}

func nonNil(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	return msgs
}

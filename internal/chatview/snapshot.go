package chatview

import (
	"strings"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
)

const (
	TextLoading = "Loading messages..."
	TextEmpty   = "No messages yet. Start the conversation!"
	selfLabel   = "You"
)

// Line is one rendered message.
type Line struct {
	ID        string
	Sender    string
	Body      string
	Time      string
	Mine      bool
	Pending   bool
	Deletable bool
	Unread    bool
}

// Snapshot is an immutable picture of the view for rendering.
type Snapshot struct {
	Status      Status
	Counterpart Counterpart
	Title       string
	Lines       []Line
	// Placeholder replaces Lines when there is nothing to show.
	Placeholder string
	Draft       string
	Loading     bool
	// Busy is true while a send is in flight; the input is disabled then.
	Busy          bool
	InputDisabled bool
	CanSubmit     bool
	CanClear      bool
	ScrollSeq     int
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	s := Snapshot{
		Status:      v.status,
		Counterpart: v.cp,
		Draft:       v.draft,
		Busy:        v.status == StatusSending,
		ScrollSeq:   v.scrollSeq,
	}
	v.mu.Unlock()

	if s.Status == StatusClosed {
		s.InputDisabled = true
		return s
	}

	session := v.client.Session()
	msgs := v.client.MessagesWith(s.Counterpart.ID)
	s.Loading = v.client.Loading()
	s.Title = title(session.Role, s.Counterpart.Name, len(msgs) > 0)
	s.InputDisabled = s.Busy
	s.CanSubmit = !s.Busy && s.Status == StatusActive && strings.TrimSpace(s.Draft) != ""
	s.CanClear = len(msgs) > 0 && !s.Busy

	switch {
	case len(msgs) == 0 && (s.Loading || s.Status == StatusLoading):
		s.Placeholder = TextLoading
	case len(msgs) == 0:
		s.Placeholder = TextEmpty
	}

	self := session.SelfName
	if self == "" {
		self = selfLabel
	}
	s.Lines = make([]Line, 0, len(msgs))
	for _, m := range msgs {
		mine := m.SenderRole == session.Role
		sender := self
		if !mine {
			sender = m.SenderName
			if sender == "" {
				sender = s.Counterpart.Name
			}
		}
		s.Lines = append(s.Lines, Line{
			ID:        m.ID,
			Sender:    sender,
			Body:      m.Body,
			Time:      m.CreatedAt.In(v.opts.Location).Format("15:04"),
			Mine:      mine,
			Pending:   m.IsOptimistic,
			Deletable: !m.IsOptimistic,
			Unread:    messaging.IsUnread(m, session.Role),
		})
	}
	return s
}

// title follows the marketplace wording: a fresh thread invites a first
// message, an existing one reads as a reply.
func title(role messaging.Role, name string, hasMessages bool) string {
	switch {
	case !hasMessages:
		return "Message with " + name
	case role == messaging.RoleProvider:
		return "Reply to " + name
	default:
		return "Message " + name
	}
}

package inbox

import (
	"time"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
)

// Entry is one row of the conversation list.
type Entry struct {
	CounterpartID string
	Name          string
	Preview       string
	LastAt        time.Time
	Unread        int
	Active        bool
}

type Snapshot struct {
	Entries     []Entry
	Selected    string
	Thread      []messaging.Message
	UnreadTotal int
	Alert       *Alert
	Loading     bool
	Running     bool
}

func (in *Inbox) Conversations() []Entry {
	selected := in.Selected()
	convs := in.client.Conversations()
	out := make([]Entry, 0, len(convs))
	for _, c := range convs {
		out = append(out, Entry{
			CounterpartID: c.CounterpartID,
			Name:          c.CounterpartName,
			Preview:       c.Last.Body,
			LastAt:        c.Last.CreatedAt,
			Unread:        c.Unread,
			Active:        c.CounterpartID == selected,
		})
	}
	return out
}

func (in *Inbox) Snapshot() Snapshot {
	in.mu.Lock()
	s := Snapshot{
		Selected:    in.selected,
		UnreadTotal: in.total,
		Running:     in.stop != nil,
	}
	if in.alert != nil {
		a := *in.alert
		s.Alert = &a
	}
	in.mu.Unlock()

	s.Entries = in.Conversations()
	s.Thread = in.Thread()
	s.Loading = in.client.Loading()
	return s
}

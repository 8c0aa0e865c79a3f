package messaging

import (
	"sort"
	"strings"
)

// KeyFor builds the conversation key from the point of view of one participant.
func KeyFor(role Role, selfID, counterpartID string) Key {
	if role == RoleProvider {
		return Key{CustomerID: counterpartID, ProviderID: selfID}
	}
	return Key{CustomerID: selfID, ProviderID: counterpartID}
}

func (m Message) Key() Key {
	return Key{CustomerID: m.CustomerID, ProviderID: m.ProviderID}
}

// CounterpartID is the id of the participant that is not the viewer.
func (m Message) CounterpartID(viewer Role) string {
	if viewer == RoleProvider {
		return m.CustomerID
	}
	return m.ProviderID
}

// SortMessages orders by CreatedAt ascending; equal timestamps keep their
// relative order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

func IsUnread(m Message, viewer Role) bool {
	return m.SenderRole != viewer && !m.IsRead && !m.IsOptimistic
}

func UnreadCount(msgs []Message, viewer Role) int {
	n := 0
	for _, m := range msgs {
		if IsUnread(m, viewer) {
			n++
		}
	}
	return n
}

type Summary struct {
	CounterpartID   string
	CounterpartName string
	Last            Message
	Unread          int
	Total           int
}

// CollapseConversations reduces a message set to one summary per counterpart.
// The last message seen per key wins; summaries are ordered newest activity
// first.
func CollapseConversations(msgs []Message, viewer Role) []Summary {
	byID := make(map[string]*Summary)
	var order []string
	for _, m := range msgs {
		cp := m.CounterpartID(viewer)
		if cp == "" {
			continue
		}
		s, ok := byID[cp]
		if !ok {
			s = &Summary{CounterpartID: cp}
			byID[cp] = s
			order = append(order, cp)
		}
		s.Last = m
		s.Total++
		if IsUnread(m, viewer) {
			s.Unread++
		}
		if m.SenderRole != viewer && strings.TrimSpace(m.SenderName) != "" {
			s.CounterpartName = m.SenderName
		}
	}

	out := make([]Summary, 0, len(order))
	for _, cp := range order {
		s := byID[cp]
		if s.CounterpartName == "" {
			s.CounterpartName = DefaultName(viewer.Other(), cp)
		}
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Last.CreatedAt.After(out[j].Last.CreatedAt)
	})
	return out
}

// DefaultName labels a participant that never sent a display name.
func DefaultName(role Role, id string) string {
	if role == RoleProvider {
		return "Provider " + id
	}
	return "Customer " + id
}

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/Vovarama1992/market-messaging/internal/chatview"
	"github.com/Vovarama1992/market-messaging/internal/convo"
	"github.com/Vovarama1992/market-messaging/internal/inbox"
	"github.com/Vovarama1992/market-messaging/internal/messaging"
)

const (
	wrapWidth    = 72
	previewWidth = 40
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mineStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	theirStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	unreadStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	alertStyle  = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("11")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

func renderLine(l chatview.Line) string {
	style := theirStyle
	if l.Mine {
		style = mineStyle
	}
	head := mutedStyle.Render(l.Time) + " " + style.Render(l.Sender)
	switch {
	case l.Pending:
		head += mutedStyle.Render(" (sending)")
	case l.Deletable:
		head += mutedStyle.Render(" #" + l.ID)
	}
	if l.Unread {
		head += " " + unreadStyle.Render("new")
	}
	body := indent.String(wordwrap.String(l.Body, wrapWidth), 2)
	return head + "\n" + body
}

// lineFor renders an inbox message the same way the single-thread view does.
func lineFor(m messaging.Message, session convo.Session, loc *time.Location) chatview.Line {
	mine := m.SenderRole == session.Role
	sender := m.SenderName
	if mine {
		sender = session.SelfName
		if sender == "" {
			sender = "You"
		}
	} else if sender == "" {
		sender = messaging.DefaultName(m.SenderRole, m.CounterpartID(session.Role))
	}
	return chatview.Line{
		ID:        m.ID,
		Sender:    sender,
		Body:      m.Body,
		Time:      m.CreatedAt.In(loc).Format("15:04"),
		Mine:      mine,
		Pending:   m.IsOptimistic,
		Deletable: !m.IsOptimistic,
		Unread:    messaging.IsUnread(m, session.Role),
	}
}

func renderEntries(entries []inbox.Entry, unreadTotal int) string {
	var b strings.Builder
	header := "Conversations"
	if unreadTotal > 0 {
		header += fmt.Sprintf(" (%d unread)", unreadTotal)
	}
	b.WriteString(titleStyle.Render(header))
	if len(entries) == 0 {
		b.WriteString("\n" + mutedStyle.Render("  No conversations yet."))
		return b.String()
	}
	for _, e := range entries {
		marker := "  "
		if e.Active {
			marker = "> "
		}
		row := marker + e.Name + mutedStyle.Render(" ["+e.CounterpartID+"]")
		if e.Unread > 0 {
			row += " " + unreadStyle.Render(fmt.Sprintf("(%d)", e.Unread))
		}
		preview := truncate.StringWithTail(strings.ReplaceAll(e.Preview, "\n", " "), previewWidth, "...")
		row += "\n    " + mutedStyle.Render(e.LastAt.Local().Format("Jan 2 15:04")+"  "+preview)
		b.WriteString("\n" + row)
	}
	return b.String()
}

// printer writes view changes to the terminal. Snapshots arrive from poll
// goroutines, so every write goes through mu.
type printer struct {
	mu sync.Mutex
	w  io.Writer

	seen        map[string]bool
	title       string
	placeholder string
	status      chatview.Status
	list        string
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, seen: make(map[string]bool)}
}

func (p *printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

func (p *printer) prompt(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, s)
}

func (p *printer) show(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(s)
}

func (p *printer) info(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(mutedStyle.Render(s))
}

func (p *printer) notice(n convo.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n.Kind == convo.NoticeError {
		p.println(errorStyle.Render(n.Text))
		return
	}
	p.println(alertStyle.Render(n.Text))
}

func (p *printer) alert(a inbox.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(alertStyle.Render(a.Text))
}

// forget lets the next snapshot print a thread from its start.
func (p *printer) forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = make(map[string]bool)
}

// thread prints confirmed lines once each, plus title and placeholder changes.
func (p *printer) thread(s chatview.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.status
	p.status = s.Status
	if s.Status == chatview.StatusClosed {
		if prev != chatview.StatusClosed {
			p.println(mutedStyle.Render("Conversation closed."))
		}
		p.title, p.placeholder = "", ""
		p.seen = make(map[string]bool)
		return
	}
	if s.Title != p.title {
		p.title = s.Title
		p.println(titleStyle.Render(s.Title))
	}
	if len(s.Lines) == 0 {
		if s.Placeholder != p.placeholder {
			p.placeholder = s.Placeholder
			p.println(mutedStyle.Render(s.Placeholder))
		}
		return
	}
	p.placeholder = ""
	for _, l := range s.Lines {
		if l.Pending || p.seen[l.ID] {
			continue
		}
		p.seen[l.ID] = true
		p.println(renderLine(l))
	}
}

// inbox reprints the conversation list when it changes and streams new
// messages of the selected conversation.
func (p *printer) inbox(s inbox.Snapshot, session convo.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if list := renderEntries(s.Entries, s.UnreadTotal); list != p.list {
		p.list = list
		p.println(list)
	}
	for _, m := range s.Thread {
		if m.IsOptimistic || p.seen[m.ID] {
			continue
		}
		p.seen[m.ID] = true
		p.println(renderLine(lineFor(m, session, time.Local)))
	}
}

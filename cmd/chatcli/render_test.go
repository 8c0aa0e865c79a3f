package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Vovarama1992/market-messaging/internal/chatview"
	"github.com/Vovarama1992/market-messaging/internal/config"
	"github.com/Vovarama1992/market-messaging/internal/convo"
	"github.com/Vovarama1992/market-messaging/internal/inbox"
	"github.com/Vovarama1992/market-messaging/internal/messaging"
)

func TestRenderLineWrapsAndMarks(t *testing.T) {
	body := strings.Repeat("word ", 40)
	out := renderLine(chatview.Line{ID: "m1", Sender: "Casey", Body: body, Time: "12:00", Deletable: true, Unread: true})
	lines := strings.Split(out, "\n")
	if len(lines) < 3 {
		t.Fatalf("long body should wrap, got %q", out)
	}
	if !strings.Contains(lines[0], "Casey") || !strings.Contains(lines[0], "#m1") || !strings.Contains(lines[0], "new") {
		t.Fatalf("header: %q", lines[0])
	}
	for _, l := range lines[1:] {
		if !strings.HasPrefix(l, "  ") {
			t.Fatalf("body not indented: %q", l)
		}
	}

	pending := renderLine(chatview.Line{ID: "tmp-1", Sender: "You", Body: "hi", Time: "12:00", Mine: true, Pending: true})
	if !strings.Contains(pending, "(sending)") || strings.Contains(pending, "#tmp-1") {
		t.Fatalf("pending line: %q", pending)
	}
}

func TestLineForNamesSenders(t *testing.T) {
	session := convo.Session{SelfID: "p1", Role: messaging.RoleProvider}
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	theirs := lineFor(messaging.Message{ID: "m1", CustomerID: "c1", ProviderID: "p1", SenderRole: messaging.RoleCustomer, Body: "hi", CreatedAt: at}, session, time.UTC)
	if theirs.Sender != "Customer c1" || theirs.Mine || !theirs.Unread || theirs.Time != "09:30" {
		t.Fatalf("customer line: %+v", theirs)
	}
	mine := lineFor(messaging.Message{ID: "m2", CustomerID: "c1", ProviderID: "p1", SenderRole: messaging.RoleProvider, Body: "yo", CreatedAt: at}, session, time.UTC)
	if mine.Sender != "You" || !mine.Mine || mine.Unread {
		t.Fatalf("own line: %+v", mine)
	}
}

func TestRenderEntries(t *testing.T) {
	if got := renderEntries(nil, 0); !strings.Contains(got, "No conversations yet.") {
		t.Fatalf("empty list: %q", got)
	}
	got := renderEntries([]inbox.Entry{
		{CounterpartID: "c1", Name: "Pat", Preview: strings.Repeat("x", 100), Unread: 2, Active: true},
		{CounterpartID: "c2", Name: "Sam", Preview: "thanks"},
	}, 2)
	if !strings.Contains(got, "(2 unread)") || !strings.Contains(got, "> Pat") || !strings.Contains(got, "(2)") {
		t.Fatalf("list: %q", got)
	}
	if strings.Contains(got, strings.Repeat("x", previewWidth+1)) || !strings.Contains(got, "...") {
		t.Fatalf("preview not truncated: %q", got)
	}
}

func TestPrinterThreadPrintsEachLineOnce(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	snap := chatview.Snapshot{
		Status: chatview.StatusActive,
		Title:  "Message Paws",
		Lines: []chatview.Line{
			{ID: "m1", Sender: "You", Body: "first", Mine: true},
			{ID: "tmp-2", Sender: "You", Body: "second", Mine: true, Pending: true},
		},
	}
	p.thread(snap)
	p.thread(snap)
	snap.Lines[1] = chatview.Line{ID: "m2", Sender: "You", Body: "second", Mine: true}
	p.thread(snap)
	p.thread(chatview.Snapshot{Status: chatview.StatusClosed})

	out := buf.String()
	for _, want := range []string{"first", "second", "Message Paws", "Conversation closed."} {
		if strings.Count(out, want) != 1 {
			t.Fatalf("%q should appear once in %q", want, out)
		}
	}
}

func TestConsoleConfirm(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(strings.NewReader("y\nno\n"), newPrinter(&buf))
	if !c.Confirm(convo.PromptDeleteMessage) {
		t.Fatalf("y should confirm")
	}
	if c.Confirm(convo.PromptDeleteMessage) {
		t.Fatalf("no should decline")
	}
	if c.Confirm(convo.PromptDeleteMessage) {
		t.Fatalf("EOF should decline")
	}
	if !strings.Contains(buf.String(), "[y/N]") {
		t.Fatalf("prompt not shown: %q", buf.String())
	}
}

func TestCommand(t *testing.T) {
	cases := []struct {
		in        string
		name, arg string
		isCommand bool
	}{
		{"hello there", "", "", false},
		{"/delete  m1 ", "delete", "m1", true},
		{"/QUIT", "quit", "", true},
	}
	for _, tc := range cases {
		name, arg, ok := command(tc.in)
		if name != tc.name || arg != tc.arg || ok != tc.isCommand {
			t.Fatalf("%q: got (%q, %q, %v)", tc.in, name, arg, ok)
		}
	}
}

func TestResolveSession(t *testing.T) {
	tok, err := messaging.SignToken("any", messaging.Viewer{ID: "p1", Role: messaging.RoleProvider, Name: "Paws"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	s, err := resolveSession(config.Client{Token: tok, UserName: "Paws & Co"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.SelfID != "p1" || s.Role != messaging.RoleProvider || s.SelfName != "Paws & Co" {
		t.Fatalf("session from token: %+v", s)
	}

	s, err = resolveSession(config.Client{Token: "opaque", UserID: "c9", Role: messaging.RoleCustomer})
	if err != nil || s.SelfID != "c9" {
		t.Fatalf("env session: %+v %v", s, err)
	}

	if _, err := resolveSession(config.Client{Token: "opaque"}); err == nil {
		t.Fatalf("want error without identity")
	}
}

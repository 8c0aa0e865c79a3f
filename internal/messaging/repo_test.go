package messaging

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

func TestMemoryRepoContract(t *testing.T) {
	testRepoContract(t, NewMemoryRepo())
}

// Needs a live postgres; set DATABASE_URL to run it.
func TestPostgresRepoContract(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	// running it twice must be harmless
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("schema again: %v", err)
	}
	testRepoContract(t, NewRepo(db))
}

func testRepoContract(t *testing.T, repo Repo) {
	t.Helper()
	ctx := context.Background()

	// fresh participants so a shared database does not leak into the counts
	customer, provider, other := "c-"+uuid.NewString(), "p-"+uuid.NewString(), "p-"+uuid.NewString()
	key := Key{CustomerID: customer, ProviderID: provider}
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	save := func(k Key, role Role, body string, createdAt time.Time) Message {
		t.Helper()
		m := Message{
			ID:         uuid.NewString(),
			CustomerID: k.CustomerID,
			ProviderID: k.ProviderID,
			SenderRole: role,
			SenderName: string(role),
			Body:       body,
			ContextID:  "listing-7",
			CreatedAt:  createdAt,
		}
		if err := repo.SaveMessage(ctx, &m); err != nil {
			t.Fatalf("save %q: %v", body, err)
		}
		return m
	}

	second := save(key, RoleProvider, "second", at.Add(time.Minute))
	first := save(key, RoleCustomer, "first", at)
	tie := save(key, RoleCustomer, "tie", at.Add(time.Minute))
	save(Key{CustomerID: customer, ProviderID: other}, RoleCustomer, "elsewhere", at)

	conv, err := repo.ListConversation(ctx, key)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	want := []string{first.ID, second.ID, tie.ID}
	if len(conv) != len(want) {
		t.Fatalf("conversation: want=%d got=%d", len(want), len(conv))
	}
	for i, id := range want {
		if conv[i].ID != id {
			t.Fatalf("order at %d: want=%s got=%s (%q)", i, id, conv[i].ID, conv[i].Body)
		}
	}
	if got := conv[0]; got.SenderRole != RoleCustomer || got.ContextID != "listing-7" || !got.CreatedAt.Equal(at) || got.IsRead {
		t.Fatalf("round trip: %+v", got)
	}

	if all, err := repo.ListForParticipant(ctx, RoleCustomer, customer); err != nil || len(all) != 4 {
		t.Fatalf("customer messages: n=%d err=%v", len(all), err)
	}
	if all, err := repo.ListForParticipant(ctx, RoleProvider, provider); err != nil || len(all) != 3 {
		t.Fatalf("provider messages: n=%d err=%v", len(all), err)
	}

	got, err := repo.GetMessage(ctx, second.ID)
	if err != nil || got.Body != "second" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := repo.GetMessage(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get unknown: want ErrNotFound got=%v", err)
	}

	if err := repo.DeleteMessage(ctx, second.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteMessage(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete twice: want ErrNotFound got=%v", err)
	}

	n, err := repo.DeleteConversation(ctx, key)
	if err != nil || n != 2 {
		t.Fatalf("clear: n=%d err=%v", n, err)
	}
	if conv, _ := repo.ListConversation(ctx, key); len(conv) != 0 {
		t.Fatalf("after clear: %+v", conv)
	}
	if rest, _ := repo.ListForParticipant(ctx, RoleCustomer, customer); len(rest) != 1 || rest[0].Body != "elsewhere" {
		t.Fatalf("clear touched another conversation: %+v", rest)
	}
}

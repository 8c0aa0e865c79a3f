package messaging

import (
	"context"
	"database/sql"
	"errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          UUID PRIMARY KEY,
	customer_id TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	sender_role TEXT NOT NULL,
	sender_name TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL,
	context_id  TEXT NOT NULL DEFAULT '',
	is_read     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	seq         BIGSERIAL
);
CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (customer_id, provider_id, created_at);
CREATE INDEX IF NOT EXISTS messages_provider_idx ON messages (provider_id, created_at);
`

const messageColumns = `id, customer_id, provider_id, sender_role, sender_name, body, context_id, is_read, created_at`

type repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) Repo {
	return &repo{db: db}
}

// EnsureSchema creates the messages table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (r *repo) SaveMessage(ctx context.Context, msg *Message) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, customer_id, provider_id, sender_role, sender_name, body, context_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`,
		msg.ID,
		msg.CustomerID,
		msg.ProviderID,
		string(msg.SenderRole),
		msg.SenderName,
		msg.Body,
		msg.ContextID,
		msg.IsRead,
		msg.CreatedAt,
	).Scan(&msg.CreatedAt)
}

func (r *repo) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repo) ListConversation(ctx context.Context, key Key) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE customer_id = $1 AND provider_id = $2
		ORDER BY created_at ASC, seq ASC
	`, key.CustomerID, key.ProviderID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repo) ListForParticipant(ctx context.Context, role Role, userID string) ([]Message, error) {
	column := "customer_id"
	if role == RoleProvider {
		column = "provider_id"
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE `+column+` = $1
		ORDER BY created_at ASC, seq ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repo) DeleteMessage(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) DeleteConversation(ctx context.Context, key Key) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM messages WHERE customer_id = $1 AND provider_id = $2
	`, key.CustomerID, key.ProviderID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (Message, error) {
	var m Message
	var role string
	err := s.Scan(
		&m.ID,
		&m.CustomerID,
		&m.ProviderID,
		&role,
		&m.SenderName,
		&m.Body,
		&m.ContextID,
		&m.IsRead,
		&m.CreatedAt,
	)
	m.SenderRole = Role(role)
	return m, err
}

func collect(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

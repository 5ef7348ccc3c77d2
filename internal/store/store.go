package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
)

// Store wraps the Postgres connection used for users, conversations and
// price watches.
type Store struct {
	DB *sql.DB
}

// Message statuses persisted alongside assistant turns.
const (
	MessageStatusCompleted = "completed"
	MessageStatusStopped   = "stopped"
	MessageStatusFailed    = "failed"
)

// ErrEmailTaken is returned by CreateUser when the email already exists.
var ErrEmailTaken = errors.New("email already registered")

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrEmailTaken
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Conversation operations

type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Store) CreateConversation(ctx context.Context, userID, title string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO conversations (user_id, title) VALUES ($1,$2) RETURNING id`,
		userID, title).Scan(&id)
	return id, err
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id=$1 ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetConversation(ctx context.Context, id, userID string) (Conversation, error) {
	var c Conversation
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id=$1 AND user_id=$2`,
		id, userID).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) RenameConversation(ctx context.Context, id, userID, title string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE conversations SET title=$3, updated_at=NOW() WHERE id=$1 AND user_id=$2`,
		id, userID, title)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id, userID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1 AND user_id=$2`, id, userID)
	return err
}

// Message operations

type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Reasoning      string
	Status         string
	Sources        json.RawMessage
	CreatedAt      time.Time
}

// AddMessage appends one turn and bumps the conversation's updated_at.
// Sources holds the serialized reference list for assistant sourcing turns.
func (s *Store) AddMessage(ctx context.Context, m Message) (string, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	sources := m.Sources
	if len(sources) == 0 {
		sources = json.RawMessage("[]")
	}
	var id string
	err = tx.QueryRowContext(ctx, `
INSERT INTO messages (conversation_id, role, content, reasoning, status, sources)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		m.ConversationID, m.Role, m.Content, m.Reasoning, m.Status, []byte(sources)).Scan(&id)
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at=NOW() WHERE id=$1`, m.ConversationID); err != nil {
		return "", err
	}
	return id, tx.Commit()
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, conversation_id, role, content, reasoning, status, sources, created_at
FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		var sources []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Reasoning, &m.Status, &sources, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Sources = sources
		out = append(out, m)
	}
	return out, rows.Err()
}

// Price watch operations

type PriceWatch struct {
	ID           string
	UserID       string
	ItemName     string
	ScheduleCron string
	LastRunAt    sql.NullTime
	CreatedAt    time.Time
}

func (s *Store) CreatePriceWatch(ctx context.Context, userID, itemName, cron string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO price_watches (user_id, item_name, schedule_cron) VALUES ($1,$2,$3) RETURNING id`,
		userID, itemName, cron).Scan(&id)
	return id, err
}

func (s *Store) ListPriceWatches(ctx context.Context, userID string) ([]PriceWatch, error) {
	return s.queryWatches(ctx,
		`SELECT id, user_id, item_name, schedule_cron, last_run_at, created_at FROM price_watches WHERE user_id=$1 ORDER BY created_at`,
		userID)
}

// ListActivePriceWatches returns every watch; the scheduler decides which are
// due from the cron expression and last_run_at.
func (s *Store) ListActivePriceWatches(ctx context.Context) ([]PriceWatch, error) {
	return s.queryWatches(ctx,
		`SELECT id, user_id, item_name, schedule_cron, last_run_at, created_at FROM price_watches ORDER BY created_at`)
}

func (s *Store) queryWatches(ctx context.Context, query string, args ...any) ([]PriceWatch, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PriceWatch
	for rows.Next() {
		var w PriceWatch
		if err := rows.Scan(&w.ID, &w.UserID, &w.ItemName, &w.ScheduleCron, &w.LastRunAt, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) DeletePriceWatch(ctx context.Context, id, userID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM price_watches WHERE id=$1 AND user_id=$2`, id, userID)
	return err
}

func (s *Store) MarkPriceWatchRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE price_watches SET last_run_at=$2 WHERE id=$1`, id, at)
	return err
}

// AddPriceSample records one observed price point for a watch.
func (s *Store) AddPriceSample(ctx context.Context, watchID string, price float64, currency, source string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO price_samples (watch_id, price, currency, source) VALUES ($1,$2,$3,$4)`,
		watchID, price, currency, source)
	return err
}

type PriceSample struct {
	ID        string
	WatchID   string
	Price     float64
	Currency  string
	Source    string
	CreatedAt time.Time
}

func (s *Store) ListPriceSamples(ctx context.Context, watchID string, limit int) ([]PriceSample, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, watch_id, price, currency, source, created_at
FROM price_samples WHERE watch_id=$1 ORDER BY created_at DESC LIMIT $2`, watchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PriceSample
	for rows.Next() {
		var p PriceSample
		if err := rows.Scan(&p.ID, &p.WatchID, &p.Price, &p.Currency, &p.Source, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

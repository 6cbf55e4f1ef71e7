// Package store implements the user-record and channel-credential
// stores on SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"faqbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.UserStore and domain.ChannelStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite writers do not share.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id             TEXT PRIMARY KEY,
		first_name     TEXT,
		last_name      TEXT,
		gender         TEXT,
		talk_to_person INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS channels (
		id           TEXT PRIMARY KEY,
		access_token TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	var talk int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, gender, talk_to_person FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Gender, &talk)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.TalkToPerson = talk != 0
	return &u, nil
}

// InsertUser creates the record if absent. INSERT OR IGNORE on the
// primary key makes first-contact creation idempotent, so concurrent
// deliveries for a new sender cannot produce duplicate rows.
func (s *SQLiteStore) InsertUser(ctx context.Context, u domain.User) error {
	talk := 0
	if u.TalkToPerson {
		talk = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, first_name, last_name, gender, talk_to_person)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.FirstName, u.LastName, u.Gender, talk,
	)
	return err
}

func (s *SQLiteStore) SetTalkToPerson(ctx context.Context, id string, v bool) error {
	talk := 0
	if v {
		talk = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET talk_to_person = ? WHERE id = ?`, talk, id,
	)
	return err
}

func (s *SQLiteStore) AccessToken(ctx context.Context, channelID string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT access_token FROM channels WHERE id = ?`, channelID,
	).Scan(&token)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *SQLiteStore) PutChannel(ctx context.Context, channelID, accessToken string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, access_token) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET access_token = excluded.access_token`,
		channelID, accessToken,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

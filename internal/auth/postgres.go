package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	email         TEXT PRIMARY KEY,
	password_hash BYTEA NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	email      TEXT NOT NULL REFERENCES users(email) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresStore keeps users and sessions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create auth tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddUser(ctx context.Context, email, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2)
		 ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash`,
		normalizeEmail(email), hash)
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	var hash []byte
	err := s.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE email = $1`, email).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("look up user: %w", err)
	}
	if !checkPassword(hash, password) {
		return Session{}, ErrInvalidCredentials
	}

	sess := Session{Token: newToken(), Email: email}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO sessions (token, email) VALUES ($1, $2) RETURNING created_at`,
		sess.Token, email).Scan(&sess.Created)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Validate(ctx context.Context, token string) (Session, error) {
	sess := Session{Token: token}
	var created time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT email, created_at FROM sessions WHERE token = $1`, token).Scan(&sess.Email, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("look up session: %w", err)
	}
	sess.Created = created
	return sess, nil
}

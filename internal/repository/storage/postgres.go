package storage

import (
	"context"
	"database/sql"
	"fmt"

	// import the postgres driver to register it with the database/sql package.
	_ "github.com/lib/pq"
)

type Storage struct {
	Connection *sql.DB
}

func NewPostgresStorage(dsn string) (*Storage, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}

	if err = conn.Ping(); err != nil {
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	return &Storage{Connection: conn}, nil
}

func (that *Storage) Init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            UUID PRIMARY KEY,
			name          TEXT NOT NULL UNIQUE,
			full_name     TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			wins          INTEGER NOT NULL DEFAULT 0,
			losses        INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS game_sessions (
			id             UUID PRIMARY KEY,
			code           TEXT NOT NULL UNIQUE,
			status         TEXT NOT NULL,
			player1_id     UUID NOT NULL REFERENCES users (id),
			player2_id     UUID REFERENCES users (id),
			stone_position INTEGER NOT NULL DEFAULT 0,
			balance1       INTEGER NOT NULL DEFAULT 50,
			balance2       INTEGER NOT NULL DEFAULT 50,
			pending_move1  INTEGER,
			pending_move2  INTEGER,
			winner_id      UUID REFERENCES users (id),
			version        INTEGER NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_status ON game_sessions (status, created_at)`,
	}

	for _, query := range queries {
		if _, err := that.Connection.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("can't create table: %w", err)
		}
	}

	return nil
}

func (that *Storage) Close() error {
	return that.Connection.Close()
}

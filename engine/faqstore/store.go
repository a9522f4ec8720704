// Package faqstore is the relational accessor for the faq table, the source
// of truth for FAQ content. Every operation checks out a dedicated connection
// and releases it on exit; there are no cross-operation transactions.
package faqstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anarkh-ai/faq-retrieval/engine/domain"
	_ "github.com/go-sql-driver/mysql" // register MySQL driver
)

// qualifying filters out rows where either side of the pair is missing.
const qualifying = `question IS NOT NULL AND answer IS NOT NULL AND question != '' AND answer != ''`

const (
	selectAll   = `SELECT id, question, answer FROM faq WHERE ` + qualifying + ` ORDER BY id`
	selectByID  = `SELECT id, question, answer FROM faq WHERE id = ?`
	upsertOne   = `INSERT INTO faq (id, question, answer) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE question = VALUES(question), answer = VALUES(answer)`
	countAll    = `SELECT COUNT(*) FROM faq WHERE ` + qualifying
	createTable = `CREATE TABLE IF NOT EXISTS faq (
		id VARCHAR(64) PRIMARY KEY,
		question VARCHAR(1024),
		answer VARCHAR(4096)
	)`
)

// Store provides CRUD over the faq table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to MySQL with the given DSN.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("faqstore: open: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an existing database handle. Used by tests.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Close releases the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// conn checks out a dedicated connection; failures are reported as the
// store being unavailable.
func (s *Store) conn(ctx context.Context) (*sql.Conn, error) {
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return c, nil
}

// Migrate creates the faq table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("faqstore: migrate: %w", err)
	}
	return nil
}

// All returns every qualifying FAQ ordered by id.
func (s *Store) All(ctx context.Context) ([]domain.FAQ, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rows, err := c.QueryContext(ctx, selectAll)
	if err != nil {
		return nil, fmt.Errorf("faqstore: select all: %w", err)
	}
	defer rows.Close()

	var faqs []domain.FAQ
	for rows.Next() {
		var f domain.FAQ
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer); err != nil {
			return nil, fmt.Errorf("faqstore: scan: %w", err)
		}
		faqs = append(faqs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("faqstore: rows: %w", err)
	}

	s.logger.Info("loaded faqs", "count", len(faqs))
	return faqs, nil
}

// Get returns the FAQ with the given id, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id string) (*domain.FAQ, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var f domain.FAQ
	err = c.QueryRowContext(ctx, selectByID, id).Scan(&f.ID, &f.Question, &f.Answer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("faqstore: select %s: %w", id, err)
	}
	return &f, nil
}

// Upsert inserts the FAQ or overwrites question and answer on id conflict.
// Last writer wins; there is no versioning.
func (s *Store) Upsert(ctx context.Context, f domain.FAQ) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.ExecContext(ctx, upsertOne, f.ID, f.Question, f.Answer); err != nil {
		return fmt.Errorf("faqstore: upsert %s: %w", f.ID, err)
	}
	s.logger.Info("upserted faq", "id", f.ID)
	return nil
}

// Count returns the number of qualifying rows, using the same filter as All.
func (s *Store) Count(ctx context.Context) (int, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	var n int
	if err := c.QueryRowContext(ctx, countAll).Scan(&n); err != nil {
		return 0, fmt.Errorf("faqstore: count: %w", err)
	}
	return n, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.SettlementStore.
var _ store.SettlementStore = (*Service)(nil)

type Service struct {
	db        *sql.DB
	subledger *SubledgerService

	observersMu sync.RWMutex
	observers   []store.LedgerObserver
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	// Immediate transactions serialize writers so read-then-update sequences cannot interleave.
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service, err := newServiceWithDb(db)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

// OpenInMemory returns a fully initialized service backed by a private in-memory database.
// A single connection is used because every sqlite :memory: connection is its own database.
func OpenInMemory() (*Service, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("unable to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newServiceWithDb(db)
}

func newServiceWithDb(db *sql.DB) (*Service, error) {
	subledger := NewSubledgerService(db)
	service := &Service{db: db, subledger: subledger}

	if err := service.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	if err := subledger.InitSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize subledger schema: %w", err)
	}
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// Ping checks the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddObserver registers o to receive ledger entries after each commit.
func (s *Service) AddObserver(o store.LedgerObserver) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, o)
}

// ledgerTx is an open database transaction that remembers the ledger entries it wrote.
type ledgerTx struct {
	tx      *sql.Tx
	entries []models.LedgerEntry
}

// withTx runs fn in one database transaction. Observers only see entries from committed transactions.
func (s *Service) withTx(ctx context.Context, fn func(ltx *ledgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ltx := &ledgerTx{tx: tx}
	if err := fn(ltx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(ltx.entries) > 0 {
		s.notifyObservers(ctx, ltx.entries)
	}
	return nil
}

// post writes one ledger entry and the matching balance change inside ltx.
func (s *Service) post(ctx context.Context, ltx *ledgerTx, params PostParams) (*models.LedgerEntry, error) {
	entry, err := s.subledger.Post(ctx, ltx.tx, params)
	if err != nil {
		return nil, err
	}
	ltx.entries = append(ltx.entries, *entry)
	return entry, nil
}

func (s *Service) notifyObservers(ctx context.Context, entries []models.LedgerEntry) {
	s.observersMu.RLock()
	observers := append([]store.LedgerObserver(nil), s.observers...)
	s.observersMu.RUnlock()

	for _, o := range observers {
		o.EntriesCommitted(ctx, entries)
	}
}

func (s *Service) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		cpf TEXT NOT NULL DEFAULT '',
		referral_code TEXT NOT NULL UNIQUE,
		referred_by TEXT NOT NULL DEFAULT '',
		total_invested TEXT NOT NULL DEFAULT '0',
		total_earned TEXT NOT NULL DEFAULT '0',
		total_withdrawn TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by);

	-- Materialized ancestor edges, written once at registration
	CREATE TABLE IF NOT EXISTS referrals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		referred_user_id TEXT NOT NULL,
		level INTEGER NOT NULL CHECK (level BETWEEN 1 AND 3),
		created_at TIMESTAMP NOT NULL,
		UNIQUE(referred_user_id, level)
	);

	CREATE INDEX IF NOT EXISTS idx_referrals_user ON referrals(user_id, level);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('DAILY', 'END_CYCLE')),
		duration_days INTEGER NOT NULL,
		daily_income TEXT NOT NULL DEFAULT '0',
		total_return TEXT NOT NULL,
		max_purchases INTEGER NOT NULL DEFAULT 1,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cycles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		duration_days INTEGER NOT NULL,
		daily_income TEXT NOT NULL DEFAULT '0',
		total_return TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ends_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		days_paid INTEGER NOT NULL DEFAULT 0,
		total_paid TEXT NOT NULL DEFAULT '0',
		is_first_purchase BOOLEAN NOT NULL DEFAULT 0,
		last_paid_at TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_status ON cycles(status);
	CREATE INDEX IF NOT EXISTS idx_cycles_user_plan ON cycles(user_id, plan_id, status);

	-- At most one daily credit per cycle and calendar day
	CREATE TABLE IF NOT EXISTS earnings (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		reference_date TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'DAILY',
		created_at TIMESTAMP NOT NULL,
		UNIQUE(cycle_id, reference_date)
	);

	-- One commission per triggering event and level
	CREATE TABLE IF NOT EXISTS commissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		from_user_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		amount TEXT NOT NULL,
		purchase_amount TEXT NOT NULL,
		percentage TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE(source_type, source_id, level)
	);

	CREATE INDEX IF NOT EXISTS idx_commissions_user ON commissions(user_id);

	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		transaction_id TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		identifier TEXT NOT NULL DEFAULT '',
		qr_code TEXT NOT NULL DEFAULT '',
		qr_code_base64 TEXT NOT NULL DEFAULT '',
		qr_code_image TEXT NOT NULL DEFAULT '',
		order_url TEXT NOT NULL DEFAULT '',
		raw_response TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMP NOT NULL,
		paid_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_transaction ON deposits(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_deposits_order ON deposits(order_id);
	CREATE INDEX IF NOT EXISTS idx_deposits_identifier ON deposits(identifier);
	CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status);

	CREATE TABLE IF NOT EXISTS webhook_events (
		id TEXT PRIMARY KEY,
		hash TEXT NOT NULL UNIQUE,
		payload TEXT NOT NULL,
		external_id TEXT NOT NULL DEFAULT '',
		event_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'received',
		deposit_id TEXT NOT NULL DEFAULT '',
		withdrawal_id TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		received_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_webhook_events_status ON webhook_events(status);

	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		fee_amount TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		pix_key TEXT NOT NULL,
		pix_key_type TEXT NOT NULL,
		cpf TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'REQUESTED',
		transaction_id TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		provider_response TEXT NOT NULL DEFAULT '',
		requested_date TEXT NOT NULL,
		requested_at TIMESTAMP NOT NULL,
		approved_at TIMESTAMP,
		paid_at TIMESTAMP,
		rejected_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_user_date ON withdrawals(user_id, requested_date);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_transaction ON withdrawals(transaction_id);

	CREATE TABLE IF NOT EXISTS daily_rewards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		claim_date TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, claim_date)
	);

	-- Versioned configuration: every write is a new row
	CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		effective_from TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settings_key ON settings(key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, what, id)
	}
	return fmt.Errorf("unable to query %s: %w", what, err)
}

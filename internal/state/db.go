package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/internal/escalation"
	"github.com/wemix/headwatch/pkg/logger"

	// sql backend drivers
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/lib/pq"
)

//go:embed schema/sqlite/*.sql
var embedSqliteSchema embed.FS

//go:embed schema/pgsql/*.sql
var embedPgsqlSchema embed.FS

// gooseMu guards goose's package-level base FS and dialect
var gooseMu sync.Mutex

// DBStore keeps the state as a JSON value in a key/value table.
type DBStore struct {
	engine         string
	db             *sqlx.DB
	key            string
	codec          *Codec
	resetOnCorrupt bool
	lockTimeout    time.Duration
	logger         *logger.Logger

	// sqlite allows one writer; serialize in-process writers up front
	writerMu sync.Mutex
}

type stateRow struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	UpdatedAt int64  `db:"updated_at"`
}

// NewDBStore connects to the backend selected by opts and applies the schema
func NewDBStore(ctx context.Context, opts Options, codec *Codec, log *logger.Logger) (*DBStore, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch opts.Backend {
	case BackendSqlite:
		path := opts.DSN
		if path == "" {
			path = opts.Path
		}
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		db, err = sqlx.Open("sqlite", sqliteDSN(path))
		if err != nil {
			return nil, fmt.Errorf("error opening sqlite database: %w", err)
		}
		db.SetMaxOpenConns(1)
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)

	case BackendPgsql:
		if opts.DSN == "" {
			return nil, fmt.Errorf("pgsql backend requires a dsn")
		}
		db, err = sqlx.Open("postgres", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("error opening pgsql database: %w", err)
		}
		db.SetMaxOpenConns(2)
		db.SetConnMaxIdleTime(30 * time.Second)

	default:
		return nil, fmt.Errorf("unsupported database backend: %s", opts.Backend)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping %s database: %w", opts.Backend, err)
	}

	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}

	store := &DBStore{
		engine:         opts.Backend,
		db:             db,
		key:            key,
		codec:          codec,
		resetOnCorrupt: opts.ResetOnCorrupt,
		lockTimeout:    timeout,
		logger:         log,
	}

	if err := store.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Debug("state database ready",
		zap.String("engine", opts.Backend),
		zap.String("key", key))

	return store, nil
}

// sqliteDSN enables WAL and makes transactions take the write lock on BEGIN,
// so concurrent processes queue instead of failing at commit.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_txlock=immediate"
}

func (s *DBStore) applySchema() error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	var dialect, dir string
	switch s.engine {
	case BackendPgsql:
		goose.SetBaseFS(embedPgsqlSchema)
		dialect, dir = "postgres", "schema/pgsql"
	default:
		goose.SetBaseFS(embedSqliteSchema)
		dialect, dir = "sqlite3", "schema/sqlite"
	}
	defer goose.SetBaseFS(nil)

	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	return goose.Up(s.db.DB, dir)
}

func (s *DBStore) query(queries map[string]string) string {
	return queries[s.engine]
}

// Load reads the record. A missing row yields the default state.
func (s *DBStore) Load(ctx context.Context) (escalation.MonitorState, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row, `SELECT key, value, updated_at FROM monitor_state WHERE key = $1`, s.key)
	if errors.Is(err, sql.ErrNoRows) {
		return escalation.DefaultState(), nil
	}
	if err != nil {
		return escalation.MonitorState{}, fmt.Errorf("failed to load state: %w", err)
	}

	return decodeOrReset(s.codec, []byte(row.Value), s.resetOnCorrupt, s.logger)
}

// Save upserts the record
func (s *DBStore) Save(ctx context.Context, st escalation.MonitorState) error {
	return s.runTransaction(ctx, func(tx *sqlx.Tx) error {
		return s.write(ctx, tx, st)
	})
}

// Update runs fn inside one transaction. On pgsql a transaction-scoped
// advisory lock keyed by the record key keeps concurrent monitors apart.
func (s *DBStore) Update(ctx context.Context, fn UpdateFunc) error {
	return s.runTransaction(ctx, func(tx *sqlx.Tx) error {
		if s.engine == BackendPgsql {
			lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
			defer cancel()
			if _, err := tx.ExecContext(lockCtx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.key); err != nil {
				return fmt.Errorf("failed to lock state: %w", err)
			}
		}

		current := escalation.DefaultState()
		var row stateRow
		err := tx.GetContext(ctx, &row, `SELECT key, value, updated_at FROM monitor_state WHERE key = $1`, s.key)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to load state: %w", err)
		default:
			current, err = decodeOrReset(s.codec, []byte(row.Value), s.resetOnCorrupt, s.logger)
			if err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		return s.write(ctx, tx, next)
	})
}

func (s *DBStore) write(ctx context.Context, tx *sqlx.Tx, st escalation.MonitorState) error {
	value, err := s.codec.Encode(st)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, s.query(map[string]string{
		BackendPgsql: `
			INSERT INTO monitor_state (key, value, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`,
		BackendSqlite: `
			INSERT OR REPLACE INTO monitor_state (key, value, updated_at)
			VALUES ($1, $2, $3)`,
	}), s.key, string(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *DBStore) runTransaction(ctx context.Context, handler func(tx *sqlx.Tx) error) error {
	if s.engine == BackendSqlite {
		s.writerMu.Lock()
		defer s.writerMu.Unlock()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting db transaction: %w", err)
	}

	defer func() {
		//nolint:errcheck // no-op after commit
		tx.Rollback()
	}()

	if err := handler(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing db transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *DBStore) Close() error {
	return s.db.Close()
}

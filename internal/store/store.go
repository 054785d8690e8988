// Package store is Hatrac's metadata directory (§4.2): a transactional
// repository over namespace/object/version/upload rows. Every mutating
// call runs inside a SERIALIZABLE transaction and is retried on
// serialization failure up to database_max_retries (§4.2, §5, §7), so
// callers never see a retryable conflict — only a final, durable error
// or success.
//
// Grounded on the teacher's transaction style (ais/transaction.go,
// ais/prxtxn.go: two-phase "begin -> commit" txn helpers keyed by a
// UUID) adapted to a single-node SQL transaction instead of a
// cluster-wide two-phase commit, and on storj-storj's use of
// database/sql + github.com/lib/pq as the concrete driver for its
// satellite metadata store.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/informatics-isi-edu/hatrac/internal/aaa/glog"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
	"github.com/informatics-isi-edu/hatrac/internal/metrics"
)

// Store is the concrete metadata directory, backed by PostgreSQL.
type Store struct {
	db         *sql.DB
	maxRetries int
}

// Open connects to dsn and verifies connectivity; it does not create the
// schema (see cmd/hatrac-admin's `deploy` subcommand / Migrate).
func Open(dsn string, maxRetries int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, herr.Internal(err, "open database")
	}
	if err := db.Ping(); err != nil {
		return nil, herr.Internal(err, "ping database")
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Store{db: db, maxRetries: maxRetries}, nil
}

// Migrate bootstraps the schema (idempotent: CREATE TABLE IF NOT EXISTS).
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return herr.Internal(err, "apply schema")
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// txFunc is the body of a retryable transaction. Per §4.2/§5, any
// storage-backend side effect performed inside fn must be idempotent or
// deferred until the final (successful) attempt — the retry envelope is
// the whole handler, not just the SQL statements.
type txFunc func(ctx context.Context, tx *sql.Tx) error

// withRetryTx runs fn inside a SERIALIZABLE transaction, retrying with
// exponential backoff when PostgreSQL reports a serialization failure
// (SQLSTATE 40001) or a deadlock (40P01), per §4.2 "On database
// serialization failure the operation retries up to database_max_retries
// with exponential backoff".
func (s *Store) withRetryTx(ctx context.Context, fn txFunc) error {
	var lastErr error
	backoff := 10 * time.Millisecond
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
		metrics.DatabaseRetriesTotal.Inc()
		if attempt == s.maxRetries {
			break
		}
		glog.Warningf("store: serialization conflict (attempt %d/%d), retrying: %v", attempt+1, s.maxRetries, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return herr.Internal(ctx.Err(), "retry cancelled")
		}
		backoff *= 2
	}
	return herr.Conflict("transaction could not be serialized after %d retries: %v", s.maxRetries, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn txFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return herr.Internal(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return herr.Internal(err, "commit transaction")
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	for e := err; e != nil; e = unwrap(e) {
		if pe, ok := e.(*pq.Error); ok {
			pqErr = pe
			break
		}
	}
	if pqErr == nil {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return true
	default:
		return false
	}
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethpandaops/devsync/pkg/rendering"
	"github.com/sirupsen/logrus"
)

// Result summarises a committed batch
type Result struct {
	Statements   int
	RowsAffected int64
	Duration     time.Duration
	// States is the sequence of session states the invocation went through
	States []State
}

// ExecutorInterface applies a batch of statements
type ExecutorInterface interface {
	Execute(ctx context.Context, statements []rendering.Statement) (*Result, error)
}

// Executor runs statement batches in a single transaction
type Executor struct {
	log logrus.FieldLogger
	cfg *Config
}

// NewExecutor creates a new executor
func NewExecutor(logger logrus.FieldLogger, cfg *Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Executor{
		log: logger.WithFields(logrus.Fields{
			"component": "sql-executor",
			"target":    cfg.Redacted(),
		}),
		cfg: cfg,
	}, nil
}

// Execute opens a connection, runs every statement in order inside one
// transaction and commits. On any failure nothing is committed. The
// connection is closed before returning.
func (e *Executor) Execute(ctx context.Context, statements []rendering.Statement) (result *Result, err error) {
	start := time.Now()
	sess := newSession()

	if len(statements) == 0 {
		e.log.Info("No statements to execute")

		return &Result{States: sess.history}, nil
	}

	db, err := sql.Open(e.cfg.Driver, e.cfg.DSN())
	if err != nil {
		return nil, e.fail(sess, &ExecutionError{Kind: KindDriver, State: sess.state, Index: -1, Err: err})
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			e.log.WithError(closeErr).Warn("Failed to close database connection")
		}

		e.moveTo(sess, StateDisconnected)

		if result != nil {
			result.States = append([]State(nil), sess.history...)
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, e.cfg.ConnectTimeout)
	defer cancel()

	if err = db.PingContext(pingCtx); err != nil {
		return nil, e.fail(sess, &ExecutionError{Kind: Classify(err), State: sess.state, Index: -1, Err: fmt.Errorf("failed to connect: %w", err)})
	}

	e.moveTo(sess, StateConnected)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, e.fail(sess, &ExecutionError{Kind: Classify(err), State: sess.state, Index: -1, Err: fmt.Errorf("failed to begin transaction: %w", err)})
	}

	committed := false
	defer func() {
		if committed {
			return
		}

		if rbErr := tx.Rollback(); rbErr != nil {
			e.log.WithError(rbErr).Debug("Rollback after failure")
		}
	}()

	var rows int64

	for i, stmt := range statements {
		e.moveTo(sess, StateExecuting)

		res, err := tx.ExecContext(ctx, string(stmt))
		if err != nil {
			return nil, e.fail(sess, &ExecutionError{
				Kind:      KindStatement,
				State:     sess.state,
				Index:     i,
				Statement: string(stmt),
				Err:       err,
			})
		}

		if n, err := res.RowsAffected(); err == nil {
			rows += n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, e.fail(sess, &ExecutionError{Kind: Classify(err), State: sess.state, Index: -1, Err: fmt.Errorf("failed to commit: %w", err)})
	}

	committed = true
	e.moveTo(sess, StateCommitted)

	result = &Result{
		Statements:   len(statements),
		RowsAffected: rows,
		Duration:     time.Since(start),
	}

	e.log.WithFields(logrus.Fields{
		"statements":    result.Statements,
		"rows_affected": result.RowsAffected,
		"duration":      result.Duration,
	}).Info("Committed statement batch")

	return result, nil
}

func (e *Executor) fail(sess *session, execErr *ExecutionError) error {
	e.moveTo(sess, StateFailed)

	e.log.WithError(execErr.Err).WithFields(logrus.Fields{
		"kind":  execErr.Kind,
		"state": execErr.State,
		"index": execErr.Index,
	}).Error("Statement execution failed")

	return execErr
}

func (e *Executor) moveTo(sess *session, to State) {
	from := sess.state
	if err := sess.transition(to); err != nil {
		e.log.WithError(err).Warn("Unexpected session transition")

		return
	}

	if from != to {
		e.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("Session transition")
	}
}

// Verify interface compliance at compile time
var _ ExecutorInterface = (*Executor)(nil)

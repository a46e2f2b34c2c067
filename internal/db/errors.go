package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/sprintpilot/internal/store"
)

// conflictRetries bounds retries of writes that hit a transaction conflict.
const conflictRetries = 3

var (
	// ErrAlreadyExists indicates a record with the same id or unique key already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict indicates concurrent writes to the same record,
	// e.g. two turns of one workspace recording usage at once.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound is the store-wide not-found sentinel.
	ErrNotFound = store.ErrNotFound
)

// wrapQueryError maps SurrealDB query errors onto the sentinels above.
// Other errors pass through unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "already exists") || strings.Contains(msg, "already contains") {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}

// retryOnConflict runs fn until it succeeds, fails with anything other than
// ErrTransactionConflict, or runs out of attempts.
func retryOnConflict(ctx context.Context, fn func() error) error {
	var err error
	for attempt := range conflictRetries {
		if err = fn(); !errors.Is(err, ErrTransactionConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
	return err
}

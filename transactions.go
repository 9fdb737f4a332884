package permkit

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
)

// txConnKey carries the open transaction through the context so every
// statement issued inside the closure joins it.
type txConnKey struct{}

func withTxConn(ctx context.Context, tx *dbkit.Tx) context.Context {
	return context.WithValue(ctx, txConnKey{}, tx)
}

// conn returns the database handle to issue statements on. Inside a
// Transaction closure this is the open transaction, otherwise the pool.
func (s *Service) conn(ctx context.Context) dbkit.IDB {
	if tx, ok := ctx.Value(txConnKey{}).(*dbkit.Tx); ok {
		return tx
	}
	return s.db
}

// txFrom reports the transaction already in flight, either carried by the
// context or because the service itself was constructed over one.
func (s *Service) txFrom(ctx context.Context) (*dbkit.Tx, bool) {
	if tx, ok := ctx.Value(txConnKey{}).(*dbkit.Tx); ok {
		return tx, true
	}
	tx, ok := s.db.(*dbkit.Tx)
	return tx, ok
}

// Transaction executes a function within a database transaction with automatic
// commit/rollback. If the function returns an error, the transaction is rolled
// back. Otherwise, it's committed. Operations invoked with the context the
// closure receives run inside the transaction.
//
// Example:
//
//	err := service.Transaction(ctx, func(ctx context.Context) error {
//	    if err := service.AssignRole(ctx, user, permkit.RoleName("writer")); err != nil {
//	        return err // This will cause a rollback
//	    }
//	    return service.GivePermissionTo(ctx, user, permkit.PermissionName("articles.publish"))
//	})
func (s *Service) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	var err error

	if tx, ok := s.txFrom(ctx); ok {
		// Already inside a transaction, nest via savepoint.
		err = tx.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(withTxConn(ctx, tx))
		})
	} else if db, ok := s.db.(*dbkit.DBKit); ok {
		err = db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(withTxConn(ctx, tx))
		})
	} else {
		err = fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
	}

	duration := time.Since(start)
	s.txMonitor.recordTransaction(duration, err == nil)

	if err != nil {
		// Reads inside the transaction may have cached uncommitted state.
		s.cache.Forget(ctx)
	}
	return err
}

// TransactionWithOptions executes a function within a database transaction
// with custom options. Supports read-only transactions, isolation levels, and
// other transaction parameters.
//
// Example:
//
//	err := service.TransactionWithOptions(ctx, dbkit.SerializableTxOptions(), func(ctx context.Context) error {
//	    return service.SyncRoles(ctx, user, permkit.RoleNames("writer", "reviewer")...)
//	})
func (s *Service) TransactionWithOptions(ctx context.Context, opts dbkit.TxOptions, fn func(ctx context.Context) error) error {
	// Nested transactions fall back to savepoints, options apply to the
	// outermost transaction only.
	if tx, ok := s.txFrom(ctx); ok {
		return tx.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(withTxConn(ctx, tx))
		})
	}

	if db, ok := s.db.(*dbkit.DBKit); ok {
		err := db.TransactionWithOptions(ctx, opts, func(tx *dbkit.Tx) error {
			return fn(withTxConn(ctx, tx))
		})
		if err != nil {
			// Reads inside the transaction may have cached uncommitted state.
			s.cache.Forget(ctx)
		}
		return err
	}

	return fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
}

// ReadOnlyTransaction executes a function within a read-only database
// transaction. Useful for enumerations that read several relation tables and
// want a consistent snapshot.
//
// Example:
//
//	err := service.ReadOnlyTransaction(ctx, func(ctx context.Context) error {
//	    roles, err := service.GetRoles(ctx, user, "")
//	    if err != nil {
//	        return err
//	    }
//	    _, err = service.GetAllPermissions(ctx, user, "")
//	    return err
//	})
func (s *Service) ReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.TransactionWithOptions(ctx, dbkit.ReadOnlyTxOptions(), fn)
}

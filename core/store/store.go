package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Store is the gorm backed data access layer.
type Store struct {
	db        *gorm.DB
	isolation sql.IsolationLevel
}

// Option customizes a Store.
type Option func(*Store)

// WithIsolation sets the isolation level of transactions opened by InTx.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(s *Store) {
		s.isolation = level
	}
}

// New creates a Store over db.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

// InTx runs fn inside a transaction bound to the context passed to fn.
func (s *Store) InTx(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}

	var opts *sql.TxOptions
	// the sqlite driver rejects isolation levels it cannot honour
	if s.db.Dialector.Name() != "sqlite" {
		opts = &sql.TxOptions{Isolation: s.isolation, ReadOnly: readOnly}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	}, opts)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// first loads one row into dest, mapping a missing row to found=false.
func first(q *gorm.DB, dest any) (bool, error) {
	err := q.Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// likeEscaper quotes LIKE wildcards; patterns use ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// realmScope restricts column to the given realms and their descendants.
func realmScope(column string, realms []string) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if realms == nil {
			return q
		}
		if len(realms) == 0 {
			return q.Where("1 = 0")
		}
		cond := q.Session(&gorm.Session{NewDB: true})
		for i, realm := range realms {
			if realm == "/" {
				return q
			}
			clause := column + " = ? OR " + column + " LIKE ? ESCAPE '!'"
			if i == 0 {
				cond = cond.Where(clause, realm, likeEscaper.Replace(realm)+"/%")
			} else {
				cond = cond.Or(clause, realm, likeEscaper.Replace(realm)+"/%")
			}
		}
		return q.Where(cond)
	}
}

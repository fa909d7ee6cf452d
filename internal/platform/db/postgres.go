package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultTxAttempts       = 5
	defaultTxInitialBackoff = 20 * time.Millisecond
	defaultTxMaxBackoff     = 500 * time.Millisecond
)

// Postgres wraps DB connectivity.
// Keep transaction helpers here so adapters share one retry policy.
type Postgres struct {
	DB *gorm.DB
}

func Connect(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retryable reports conflicts beyond serialization failures and deadlocks,
	// e.g. a failed optimistic version check.
	Retryable func(error) bool
}

// RetryTx runs op until it succeeds, fails with a non-retryable error, the
// attempts are exhausted or ctx ends. op must open and finish its own
// transaction so every attempt starts clean.
func RetryTx(ctx context.Context, policy RetryPolicy, op func() error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultTxAttempts
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.InitialBackoff
	if expo.InitialInterval <= 0 {
		expo.InitialInterval = defaultTxInitialBackoff
	}
	expo.MaxInterval = policy.MaxBackoff
	if expo.MaxInterval <= 0 {
		expo.MaxInterval = defaultTxMaxBackoff
	}
	expo.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(attempts-1)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsSerializationFailure(err) || (policy.Retryable != nil && policy.Retryable(err)) {
			return err
		}
		return backoff.Permanent(err)
	}, bo)
}

// IsSerializationFailure matches postgres serialization_failure and
// deadlock_detected.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

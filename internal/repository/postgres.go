// Package repository содержит журнал попыток оплаты в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/rentportal/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит журнал попыток оплаты, запущенных через портал.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	backoff func() retry.Backoff
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, backoff: defaultBackoff}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при сериализационных конфликтах, дедлоках и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// RecordAttempt сохраняет состояние попытки оплаты. Конечный статус в журнале
// не перезаписывается.
func (r *PostgresRepository) RecordAttempt(ctx context.Context, userID int64, a model.PaymentAttempt) error {
	var reference *string
	if a.Reference != "" {
		reference = &a.Reference
	}

	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO payment_attempts
			    (payment_id, user_id, amount, phone, description, status, reference, completed_at, poll_count, polling_halted, initiated_at)
			 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (payment_id) DO UPDATE SET
			    amount = EXCLUDED.amount,
			    status = EXCLUDED.status,
			    reference = EXCLUDED.reference,
			    completed_at = EXCLUDED.completed_at,
			    poll_count = GREATEST(payment_attempts.poll_count, EXCLUDED.poll_count),
			    polling_halted = EXCLUDED.polling_halted,
			    updated_at = now()
			 WHERE payment_attempts.status = $12`,
			a.PaymentID, userID, a.Amount.String(), a.Phone, a.Description, string(a.Status),
			reference, a.CompletedAt, a.PollCount, a.PollingHalted, a.InitiatedAt,
			string(model.PaymentStatusPending),
		)
		if err != nil {
			return fmt.Errorf("record attempt: %w", err)
		}
		return nil
	})
}

// AttemptsByUser возвращает последние попытки оплаты пользователя.
func (r *PostgresRepository) AttemptsByUser(ctx context.Context, userID int64, limit int) ([]model.PaymentAttempt, error) {
	var res []model.PaymentAttempt

	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT payment_id, amount::text, phone, description, status, reference, completed_at, poll_count, polling_halted, initiated_at
			 FROM payment_attempts
			 WHERE user_id = $1
			 ORDER BY initiated_at DESC
			 LIMIT $2`,
			userID, limit,
		)
		if err != nil {
			return fmt.Errorf("select attempts: %w", err)
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var (
				a         model.PaymentAttempt
				amount    string
				status    string
				reference *string
			)
			if err := rows.Scan(&a.PaymentID, &amount, &a.Phone, &a.Description, &status,
				&reference, &a.CompletedAt, &a.PollCount, &a.PollingHalted, &a.InitiatedAt); err != nil {
				return fmt.Errorf("scan attempt: %w", err)
			}

			a.Amount, err = decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("parse amount: %w", err)
			}
			a.Status = model.PaymentStatus(status)
			if reference != nil {
				a.Reference = *reference
			}
			res = append(res, a)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

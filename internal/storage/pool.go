// Package storage is the Storage Contract: the abstract interfaces over the
// five logical tables (raw, staging, processed, processing_jobs,
// processing_errors) plus the pgxpool-backed Postgres implementation and
// health probe. The pool lifecycle below is adapted from the teacher's
// internal/database/manager.go DatabaseManager/HealthChecker — connect with
// retry-free pooled acquire, background health polling, consecutive-failure
// tracking — generalized from benchmark connection tuning to the engine's
// transactional batch-write workload.
package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/coolbox13/omfietser-processor/internal/config"
	"github.com/coolbox13/omfietser-processor/internal/logging"
)

// Querier is the subset of pgxpool.Pool and pgx.Tx that the per-table
// repositories need. Repositories are constructed against a Querier rather
// than a concrete pool or transaction, so the same repository code runs
// either directly against the pool or bound to a transaction opened by
// WithTransaction — which is how the batch adapter gets a single atomic
// write for staging + processed + errors (spec §4.3 "Batch upsert MUST be
// a single transaction").
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Pool owns the shared pgxpool.Pool and the transaction boundary every
// Storage Contract implementation writes through.
type Pool struct {
	pool   *pgxpool.Pool
	config config.DatabaseConfig
	logger logging.Logger
	health *HealthChecker

	mutex sync.RWMutex
}

// NewPool creates a pool manager. Connect must be called before use.
func NewPool(cfg config.DatabaseConfig, logger logging.Logger) (*Pool, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	p := &Pool{config: cfg, logger: logger}
	p.health = &HealthChecker{
		pool:     p,
		interval: 30 * time.Second,
		stop:     make(chan struct{}),
		logger:   logger.With(zap.String("component", "health_checker")),
		history:  make([]HealthStatus, 0, 100),
	}
	return p, nil
}

// Connect establishes the connection pool (spec §2, "database pool is
// shared process-wide").
func (p *Pool) Connect(ctx context.Context) error {
	p.logger.Info("establishing database connection pool",
		logging.Fields.Database(p.config.Host, p.config.Port, p.config.DB)...,
	)

	connString := p.buildConnectionString()
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return errors.Wrap(err, "failed to parse connection string")
	}

	poolConfig.MaxConns = int32(p.config.PoolSize)
	if poolConfig.MaxConns < 1 {
		poolConfig.MaxConns = 10
	}
	poolConfig.HealthCheckPeriod = 30 * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, p.connectTimeout())
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return errors.Wrap(err, "failed to create connection pool")
	}

	p.mutex.Lock()
	p.pool = pool
	p.mutex.Unlock()

	if err := p.ping(connectCtx); err != nil {
		pool.Close()
		return errors.Wrap(err, "initial connection health check failed")
	}

	p.health.Start()
	p.logger.Info("database connection pool established", zap.Int32("max_conns", poolConfig.MaxConns))
	return nil
}

// Acquire returns the shared pgxpool for direct queries.
func (p *Pool) Acquire() *pgxpool.Pool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.pool
}

// Exec implements Querier by delegating to the underlying pool.
func (p *Pool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return p.Acquire().Exec(ctx, sql, args...)
}

// Query implements Querier by delegating to the underlying pool.
func (p *Pool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return p.Acquire().Query(ctx, sql, args...)
}

// QueryRow implements Querier by delegating to the underlying pool.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return p.Acquire().QueryRow(ctx, sql, args...)
}

// TxRepos bundles the staging/processed/errors repositories bound to a
// single transaction, so the Batch Adapter's write step commits atomically
// (spec §4.3 "Batch upsert MUST be a single transaction").
type TxRepos struct {
	Staging   StagingRepository
	Processed ProcessedRepository
	Errors    ErrorRepository
}

// NewTxRepos builds a TxRepos bound to tx.
func NewTxRepos(tx pgx.Tx) TxRepos {
	return TxRepos{
		Staging:   NewPostgresStaging(tx),
		Processed: NewPostgresProcessed(tx),
		Errors:    NewPostgresErrors(tx),
	}
}

// ContractWithTx returns a copy of base with Staging, Processed, and Errors
// rebound to tx, leaving Raw/Jobs/Compliance/Health untouched since they do
// not participate in a batch's atomic write.
func ContractWithTx(tx pgx.Tx, base Contract) Contract {
	bound := base
	txRepos := NewTxRepos(tx)
	bound.Staging = txRepos.Staging
	bound.Processed = txRepos.Processed
	bound.Errors = txRepos.Errors
	return bound
}

// WithBatchTransaction runs fn against a Contract whose Staging, Processed,
// and Errors repositories are bound to one transaction, so a batch's writes
// commit or roll back together (spec §4.3, §4.4).
func (p *Pool) WithBatchTransaction(ctx context.Context, base Contract, fn func(Contract) error) error {
	return p.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(ContractWithTx(tx, base))
	})
}

// WithTransaction runs fn inside a single transaction, committing on nil
// error and rolling back otherwise. Callers do not hold connections across
// awaits outside a transaction (spec §5 "Shared resources").
func (p *Pool) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	pool := p.Acquire()
	if pool == nil {
		return errors.New("database connection pool not initialized")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.Error("transaction rollback failed", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// HealthCheck performs a single ping against the pool.
func (p *Pool) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.ping(ctx)
}

// Health exposes the background HealthChecker for the Control Surface's
// /health and /ready endpoints.
func (p *Pool) Health() *HealthChecker { return p.health }

func (p *Pool) ping(ctx context.Context) error {
	p.mutex.RLock()
	pool := p.pool
	p.mutex.RUnlock()
	if pool == nil {
		return errors.New("connection pool not initialized")
	}
	return pool.Ping(ctx)
}

// Close gracefully closes the pool and stops health monitoring.
func (p *Pool) Close() error {
	p.health.Stop()

	p.mutex.Lock()
	pool := p.pool
	p.pool = nil
	p.mutex.Unlock()

	if pool != nil {
		pool.Close()
		p.logger.Info("database connection pool closed")
	}
	return nil
}

func (p *Pool) connectTimeout() time.Duration {
	if p.config.ConnectionTimeout > 0 {
		return p.config.ConnectionTimeout
	}
	return 10 * time.Second
}

func (p *Pool) buildConnectionString() string {
	ssl := p.config.SSL
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.config.User,
		p.config.Password,
		p.config.Host,
		p.config.Port,
		p.config.DB,
		ssl,
	)
}

// HealthChecker polls the pool in the background and tracks consecutive
// failures, the signal the Control Surface's /ready endpoint relies on.
type HealthChecker struct {
	pool     *Pool
	interval time.Duration
	stop     chan struct{}
	logger   logging.Logger

	lastCheck        time.Time
	consecutiveFails int64
	history          []HealthStatus

	mutex sync.Mutex
}

// HealthStatus is a single point-in-time health observation.
type HealthStatus struct {
	Timestamp    time.Time
	Healthy      bool
	ResponseTime time.Duration
	Error        string
}

// Start begins background polling.
func (hc *HealthChecker) Start() {
	go func() {
		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				hc.check()
			case <-hc.stop:
				return
			}
		}
	}()
}

// Stop halts background polling.
func (hc *HealthChecker) Stop() {
	close(hc.stop)
}

func (hc *HealthChecker) check() {
	start := time.Now()
	err := hc.pool.HealthCheck()
	responseTime := time.Since(start)

	status := HealthStatus{Timestamp: start, Healthy: err == nil, ResponseTime: responseTime}

	hc.mutex.Lock()
	hc.lastCheck = start
	if err != nil {
		status.Error = err.Error()
		atomic.AddInt64(&hc.consecutiveFails, 1)
	} else {
		atomic.StoreInt64(&hc.consecutiveFails, 0)
	}
	if len(hc.history) >= 100 {
		copy(hc.history, hc.history[1:])
		hc.history = hc.history[:99]
	}
	hc.history = append(hc.history, status)
	hc.mutex.Unlock()

	if err != nil {
		hc.logger.Warn("database health check failed", zap.Error(err),
			zap.Int64("consecutive_failures", atomic.LoadInt64(&hc.consecutiveFails)))
	}
}

// IsHealthy reports whether the most recent check succeeded.
func (hc *HealthChecker) IsHealthy() bool {
	return atomic.LoadInt64(&hc.consecutiveFails) == 0
}

// ConsecutiveFailures reports how many checks in a row have failed.
func (hc *HealthChecker) ConsecutiveFailures() int64 {
	return atomic.LoadInt64(&hc.consecutiveFails)
}

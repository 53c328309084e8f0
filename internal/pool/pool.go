// Package pool lends dedicated connections from one bounded database handle.
package pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultSize           = 10
	DefaultAcquireTimeout = 5 * time.Second
)

type Options struct {
	Size           int
	AcquireTimeout time.Duration
	// IsBroken recognises driver-specific errors that poison a connection,
	// on top of the generic bad-conn, EOF and network errors.
	IsBroken func(error) bool
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Acquired  int64
	Discarded int64
	InUse     int64
}

type Manager struct {
	db             *sqlx.DB
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
	isBroken       func(error) bool

	acquired  atomic.Int64
	discarded atomic.Int64
	inUse     atomic.Int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Open builds the handle for the configured engine. The DSN is parsed by the
// driver here, so a malformed one fails before any request is served; the
// first network round trip happens on Ping or the first Acquire.
func Open(d dialect.Dialect, dsn string, opts Options) (*Manager, error) {
	if dsn == "" {
		return nil, fmt.Errorf("missing dsn for %s", d.Engine())
	}
	db, err := d.Open(dsn)
	if err != nil {
		return nil, err
	}
	if opts.IsBroken == nil {
		opts.IsBroken = d.IsBrokenConn
	}
	return New(sqlx.NewDb(db, d.DriverName()), opts), nil
}

// New wraps an existing handle.
func New(db *sqlx.DB, opts Options) *Manager {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	db.SetMaxOpenConns(opts.Size)
	db.SetMaxIdleConns(opts.Size)
	return &Manager{
		db:             db,
		sem:            semaphore.NewWeighted(int64(opts.Size)),
		acquireTimeout: opts.AcquireTimeout,
		isBroken:       opts.IsBroken,
	}
}

func (m *Manager) DB() *sqlx.DB { return m.db }

// Ping checks a connection can be established.
func (m *Manager) Ping(ctx context.Context) error {
	return m.With(ctx, func(c *Conn) error {
		if err := c.PingContext(ctx); err != nil {
			return dberr.Wrap(dberr.KindConnectionBroken, "", err)
		}
		return nil
	})
}

// Acquire blocks until a connection is free, the acquire timeout passes
// (PoolExhausted) or ctx ends (Timeout). The caller owns the connection
// exclusively until Release.
func (m *Manager) Acquire(ctx context.Context) (*Conn, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, dberr.New(dberr.KindConnectionBroken, "pool closed")
	}
	m.wg.Add(1)
	m.mu.RUnlock()

	actx, cancel := context.WithTimeout(ctx, m.acquireTimeout)
	defer cancel()

	if err := m.sem.Acquire(actx, 1); err != nil {
		m.wg.Done()
		if ctx.Err() != nil {
			return nil, dberr.Wrap(dberr.KindTimeout, "", ctx.Err())
		}
		return nil, dberr.Wrap(dberr.KindPoolExhausted, "", err)
	}

	conn, err := m.db.Connx(actx)
	if err != nil {
		m.sem.Release(1)
		m.wg.Done()
		if ctx.Err() != nil {
			return nil, dberr.Wrap(dberr.KindTimeout, "", err)
		}
		return nil, dberr.Wrap(dberr.KindConnectionBroken, "", err)
	}

	m.acquired.Add(1)
	m.inUse.Add(1)
	return &Conn{Conn: conn, ctx: ctx, m: m}, nil
}

// With runs fn on a dedicated connection and releases it on every exit path.
// A panic inside fn discards the connection before propagating.
func (m *Manager) With(ctx context.Context, fn func(*Conn) error) (err error) {
	c, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			c.Release(driver.ErrBadConn)
			panic(r)
		}
		c.Release(err)
	}()
	return fn(c)
}

func (m *Manager) Stats() Stats {
	return Stats{
		Acquired:  m.acquired.Load(),
		Discarded: m.discarded.Load(),
		InUse:     m.inUse.Load(),
	}
}

// Close stops lending, waits for in-flight operations until ctx ends and
// then closes every connection.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return m.db.Close()
}

// poisoned reports whether a connection must not go back to the pool.
func (m *Manager) poisoned(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return m.isBroken != nil && m.isBroken(err)
}

// Conn is a connection checked out of a Manager.
type Conn struct {
	*sqlx.Conn
	ctx      context.Context
	m        *Manager
	released atomic.Bool
}

// Release hands the connection back. opErr is the outcome of the work done
// on it; a broken-connection error or an expired context discards the
// underlying driver connection so database/sql opens a fresh one later.
func (c *Conn) Release(opErr error) {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		c.m.inUse.Add(-1)
		c.m.sem.Release(1)
		c.m.wg.Done()
	}()

	if c.m.poisoned(c.ctx, opErr) {
		c.m.discarded.Add(1)
		// returning ErrBadConn from Raw makes database/sql close the driver conn
		_ = c.Raw(func(any) error { return driver.ErrBadConn })
	}
	_ = c.Close()
}

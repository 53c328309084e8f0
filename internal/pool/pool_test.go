package pool_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"db-portal/internal/dberr"
	"db-portal/internal/pool"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, size int, timeout time.Duration) (*pool.Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pool.New(sqlx.NewDb(db, "sqlmock"), pool.Options{Size: size, AcquireTimeout: timeout}), mock
}

func TestAcquireBeyondSizeIsPoolExhausted(t *testing.T) {
	p, _ := newPool(t, 1, 30*time.Millisecond)
	ctx := context.Background()

	first, err := p.Acquire(ctx)
	require.NoError(t, err)

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberr.ErrPoolExhausted)

	first.Release(nil)
	second, err := p.Acquire(ctx)
	require.NoError(t, err)
	second.Release(nil)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Acquired)
	assert.Equal(t, int64(0), stats.InUse)
	assert.Equal(t, int64(0), stats.Discarded)
}

func TestAcquireHonoursCallerContext(t *testing.T) {
	p, _ := newPool(t, 1, time.Second)
	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, dberr.ErrTimeout)
}

func TestReleaseTwiceIsHarmless(t *testing.T) {
	p, _ := newPool(t, 1, 30*time.Millisecond)
	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	c.Release(nil)
	c.Release(nil)
	assert.Equal(t, int64(0), p.Stats().InUse)
}

func TestWithReleasesOnError(t *testing.T) {
	p, _ := newPool(t, 2, 30*time.Millisecond)
	boom := errors.New("boom")

	err := p.With(context.Background(), func(*pool.Conn) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), p.Stats().InUse)
	assert.Equal(t, int64(0), p.Stats().Discarded)
}

func TestWithDiscardsOnPanic(t *testing.T) {
	p, _ := newPool(t, 2, 30*time.Millisecond)

	assert.Panics(t, func() {
		_ = p.With(context.Background(), func(*pool.Conn) error { panic("fault") })
	})
	stats := p.Stats()
	assert.Equal(t, int64(0), stats.InUse)
	assert.Equal(t, int64(1), stats.Discarded)
}

func TestTimedOutOperationDiscardsConnection(t *testing.T) {
	p, _ := newPool(t, 2, 30*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	err := p.With(ctx, func(*pool.Conn) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), p.Stats().Discarded)
	assert.Equal(t, int64(0), p.Stats().InUse)
}

func TestCloseDrainsInFlight(t *testing.T) {
	p, mock := newPool(t, 2, 30*time.Millisecond)
	mock.ExpectClose()

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	closed := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Close(context.Background())
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a connection was still lent")
	case <-time.After(30 * time.Millisecond):
	}

	held.Release(nil)
	wg.Wait()

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, dberr.ErrConnectionBroken)
}

func TestCloseGivesUpWhenContextEnds(t *testing.T) {
	p, _ := newPool(t, 1, 30*time.Millisecond)
	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_ = p.Close(ctx)
	assert.Less(t, time.Since(start), time.Second)
}

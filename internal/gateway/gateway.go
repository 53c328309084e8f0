// Package gateway is the process-wide entry point to the data-access core.
// It owns the pool and every executor built on it, bounds each operation by
// the configured timeout and logs what ran. An HTTP layer or the CLI calls
// its methods; nothing else in the core is meant to be wired by hand.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"db-portal/internal/dberr"
	"db-portal/internal/dialect"
	"db-portal/internal/engine"
	"db-portal/internal/logging"
	"db-portal/internal/pool"
	"db-portal/internal/schema"
	"db-portal/internal/value"

	"github.com/google/uuid"
)

const DefaultOperationTimeout = 30 * time.Second

// Options is the resolved configuration of one gateway.
type Options struct {
	Driver string
	DSN    string
	Schema string

	PoolSize         int
	AcquireTimeout   time.Duration
	OperationTimeout time.Duration

	DefaultLimit    int
	MaxRows         int
	ForbiddenTables []string
	ReadOnlyQueries bool

	// Seed feeds the fake data generator; zero picks a random one.
	Seed int64
}

type Gateway struct {
	dialect dialect.Dialect
	pool    *pool.Manager
	timeout time.Duration
	log     *logging.Logger

	introspector *schema.Introspector
	validator    *schema.Validator
	repo         *engine.Repository
	exec         *engine.Executor
	procs        *engine.ProcedureExecutor
	seeder       *engine.Seeder
}

// Open connects to the configured engine. The DSN is parsed and a
// connection pinged before Open returns, so a bad configuration fails here.
func Open(ctx context.Context, opts Options, log *logging.Logger) (*Gateway, error) {
	d, err := dialect.GetDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	p, err := pool.Open(d, opts.DSN, pool.Options{Size: opts.PoolSize, AcquireTimeout: opts.AcquireTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s pool: %w", d.Engine(), err)
	}
	if err := p.Ping(ctx); err != nil {
		_ = p.Close(ctx)
		return nil, fmt.Errorf("failed to reach %s: %w", d.Engine(), err)
	}
	g, err := New(ctx, p, d, opts, log)
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return g, nil
}

// New builds a gateway over an existing pool.
func New(ctx context.Context, p *pool.Manager, d dialect.Dialect, opts Options, log *logging.Logger) (*Gateway, error) {
	if log == nil {
		log = logging.Default()
	}
	schemaName, err := schema.ResolveSchema(ctx, p, d, opts.Schema)
	if err != nil {
		return nil, err
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}

	in := schema.NewIntrospector(p, d, schemaName)
	in.SetFetchTimeout(opts.OperationTimeout)
	v := schema.NewValidator(in, opts.ForbiddenTables, dialect.LexOptions(d))
	repo := engine.NewRepository(p, d, v, engine.Limits{DefaultLimit: opts.DefaultLimit, MaxRows: opts.MaxRows})

	g := &Gateway{
		dialect:      d,
		pool:         p,
		timeout:      opts.OperationTimeout,
		log:          log.With("component", "gateway", "provider", string(d.Engine())),
		introspector: in,
		validator:    v,
		repo:         repo,
		exec:         engine.NewExecutor(p, d, v, repo.Limits().MaxRows, opts.ReadOnlyQueries),
		procs:        engine.NewProcedureExecutor(p, d, v, repo.Limits().MaxRows),
		seeder:       engine.NewSeeder(repo, opts.Seed),
	}
	g.log.Debug("gateway ready", "schema", schemaName, "forbidden", len(opts.ForbiddenTables))
	return g, nil
}

func (g *Gateway) Dialect() dialect.Dialect { return g.dialect }

func (g *Gateway) Schema() string { return g.introspector.Schema() }

func (g *Gateway) PoolStats() pool.Stats { return g.pool.Stats() }

// Close waits for in-flight operations until ctx ends, then closes the pool.
func (g *Gateway) Close(ctx context.Context) error {
	g.log.Debug("closing pool", "in_use", g.pool.Stats().InUse)
	return g.pool.Close(ctx)
}

// run executes fn under the operation timeout and logs the outcome.
func (g *Gateway) run(ctx context.Context, op, target string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := classify(ctx, target, fn(ctx))

	attrs := []any{"op", op, "op_id", uuid.NewString(), "duration", time.Since(start)}
	if target != "" {
		attrs = append(attrs, "target", target)
	}
	if err == nil {
		g.log.Debug("operation", attrs...)
		return nil
	}

	kind := dberr.KindOf(err)
	attrs = append(attrs, "kind", kind.String())
	if cause := errors.Unwrap(err); cause != nil {
		attrs = append(attrs, "cause", cause.Error())
	}
	level := slog.LevelWarn
	if kind.HTTPStatus() >= 500 {
		level = slog.LevelError
	}
	g.log.Log(ctx, level, "operation failed", attrs...)
	return err
}

// classify makes sure every failure leaving the gateway is typed. Drivers
// report an aborted statement in their own words, so an infrastructure
// failure after the deadline passed is reported as Timeout.
func classify(ctx context.Context, target string, err error) error {
	if err == nil {
		return nil
	}
	switch dberr.KindOf(err) {
	case dberr.KindUnknown, dberr.KindDatabaseExecutionFailure, dberr.KindConnectionBroken, dberr.KindPoolExhausted:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return dberr.Wrap(dberr.KindTimeout, target, err)
		}
	}
	if dberr.KindOf(err) == dberr.KindUnknown {
		return dberr.Wrap(dberr.KindDatabaseExecutionFailure, target, err)
	}
	return err
}

// visible drops denylisted names so listings never reveal them.
func (g *Gateway) visible(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !g.validator.IsForbidden(n) {
			out = append(out, n)
		}
	}
	return out
}

func (g *Gateway) ListTables(ctx context.Context) ([]string, error) {
	var out []string
	err := g.run(ctx, "list_tables", "", func(ctx context.Context) error {
		names, err := g.introspector.ListTables(ctx)
		out = g.visible(names)
		return err
	})
	return out, err
}

func (g *Gateway) DescribeTable(ctx context.Context, table string) (*schema.Table, error) {
	var out *schema.Table
	err := g.run(ctx, "describe_table", table, func(ctx context.Context) (err error) {
		out, err = g.validator.ValidateTable(ctx, table)
		return err
	})
	return out, err
}

// DescribeDatabase returns every visible table with foreign keys resolved.
func (g *Gateway) DescribeDatabase(ctx context.Context) (map[string]*schema.Table, error) {
	var out map[string]*schema.Table
	err := g.run(ctx, "describe_database", "", func(ctx context.Context) error {
		all, err := g.introspector.DescribeDatabase(ctx)
		if err != nil {
			return err
		}
		out = make(map[string]*schema.Table, len(all))
		for name, t := range all {
			if !g.validator.IsForbidden(name) {
				out[name] = t
			}
		}
		return nil
	})
	return out, err
}

// RefreshSchema drops cached metadata; the next operation reloads it.
func (g *Gateway) RefreshSchema() {
	g.introspector.Refresh()
	g.log.Info("schema cache cleared")
}

func (g *Gateway) Create(ctx context.Context, table string, row value.Row) (engine.CreateResult, error) {
	var out engine.CreateResult
	err := g.run(ctx, "create", table, func(ctx context.Context) error {
		t, err := g.validator.ValidateTable(ctx, table)
		if err != nil {
			return err
		}
		out, err = g.repo.Create(ctx, t, row)
		return err
	})
	return out, err
}

// ReadAll returns up to limit rows; zero means the configured default.
func (g *Gateway) ReadAll(ctx context.Context, table string, limit int) ([]value.Row, error) {
	var out []value.Row
	err := g.run(ctx, "read_all", table, func(ctx context.Context) error {
		t, err := g.validator.ValidateTable(ctx, table)
		if err != nil {
			return err
		}
		out, err = g.repo.ReadAll(ctx, t, limit)
		return err
	})
	return out, err
}

func (g *Gateway) ReadByKey(ctx context.Context, table, keyColumn string, key value.Value) (value.Row, error) {
	var out value.Row
	err := g.run(ctx, "read_by_key", table, func(ctx context.Context) error {
		t, err := g.validator.ValidateTable(ctx, table)
		if err != nil {
			return err
		}
		out, err = g.repo.ReadByKey(ctx, t, keyColumn, key)
		return err
	})
	return out, err
}

// Update rejects an empty patch before the table is looked up, so it never
// costs a catalog round trip.
func (g *Gateway) Update(ctx context.Context, table, keyColumn string, key value.Value, patch value.Row) (int64, error) {
	var out int64
	err := g.run(ctx, "update", table, func(ctx context.Context) error {
		if patch.Len() == 0 {
			return dberr.New(dberr.KindNoFieldsToUpdate, table)
		}
		t, err := g.validator.ValidateTable(ctx, table)
		if err != nil {
			return err
		}
		out, err = g.repo.Update(ctx, t, keyColumn, key, patch)
		return err
	})
	return out, err
}

func (g *Gateway) Delete(ctx context.Context, table, keyColumn string, key value.Value) (int64, error) {
	var out int64
	err := g.run(ctx, "delete", table, func(ctx context.Context) error {
		t, err := g.validator.ValidateTable(ctx, table)
		if err != nil {
			return err
		}
		out, err = g.repo.Delete(ctx, t, keyColumn, key)
		return err
	})
	return out, err
}

// Execute runs caller-written SQL with @name parameters.
func (g *Gateway) Execute(ctx context.Context, sql string, params map[string]value.Value) (engine.Result, error) {
	var out engine.Result
	err := g.run(ctx, "execute", "", func(ctx context.Context) (err error) {
		out, err = g.exec.Execute(ctx, sql, params)
		return err
	})
	return out, err
}

// ValidateQuery checks sql the way Execute would and has the engine compile
// it without running it.
func (g *Gateway) ValidateQuery(ctx context.Context, sql string, params map[string]value.Value) error {
	return g.run(ctx, "validate_query", "", func(ctx context.Context) error {
		return g.exec.Validate(ctx, sql, params)
	})
}

// Call invokes a stored procedure or function by name.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]value.Value) ([]value.Row, error) {
	var out []value.Row
	err := g.run(ctx, "call", name, func(ctx context.Context) (err error) {
		out, err = g.procs.Call(ctx, name, args)
		return err
	})
	return out, err
}

// Diagnostics reports the provider, the server identification row and the
// pool counters.
func (g *Gateway) Diagnostics(ctx context.Context) (value.Row, error) {
	var out value.Row
	err := g.run(ctx, "diagnostics", "", func(ctx context.Context) error {
		server, err := g.exec.Diagnostics(ctx)
		if err != nil {
			return err
		}
		out.Set("provider", value.String(string(g.dialect.Engine())))
		server.Each(out.Set)
		stats := g.pool.Stats()
		out.Set("pool_acquired", value.Int(stats.Acquired))
		out.Set("pool_discarded", value.Int(stats.Discarded))
		out.Set("pool_in_use", value.Int(stats.InUse))
		return nil
	})
	return out, err
}

// SeedTables orders the named tables, or every visible table when none are
// named, so referenced tables come first.
func (g *Gateway) SeedTables(ctx context.Context, names []string) ([]*schema.Table, error) {
	var out []*schema.Table
	err := g.run(ctx, "seed_plan", strings.Join(names, ","), func(ctx context.Context) error {
		all, err := g.introspector.DescribeDatabase(ctx)
		if err != nil {
			return err
		}
		picked := make([]*schema.Table, 0, len(all))
		if len(names) == 0 {
			for name, t := range all {
				if !g.validator.IsForbidden(name) {
					picked = append(picked, t)
				}
			}
		} else {
			for _, n := range names {
				t, err := g.validator.ValidateTable(ctx, n)
				if err != nil {
					return err
				}
				if full, ok := all[t.Name]; ok {
					t = full
				}
				picked = append(picked, t)
			}
		}
		out = schema.SortByDependencies(picked)
		return nil
	})
	return out, err
}

// Seed inserts count generated rows into each of tables, which should come
// from SeedTables. The run is bounded by ctx only, since it spans many
// statements.
func (g *Gateway) Seed(ctx context.Context, tables []*schema.Table, count int, onProgress func()) ([]engine.SeedResult, error) {
	start := time.Now()
	results, err := g.seeder.Seed(ctx, tables, count, onProgress)
	for _, r := range results {
		attrs := []any{"table", r.Table, "target", r.Target, "inserted", r.Inserted, "failed", r.Failed}
		if r.Err != nil {
			attrs = append(attrs, "last_error", r.Err.Error())
		}
		g.log.Info("seeded", attrs...)
	}
	if err != nil {
		g.log.Error("seed aborted", "error", err, "duration", time.Since(start))
		return results, classify(ctx, "seed", err)
	}
	return results, nil
}

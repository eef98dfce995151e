// Package txn orchestrates the transaction cycle: stage the
// user's mutations, run the rule engine to fixpoint, check constraints
// (immediate ones re-verified plus deferred ones), then either apply
// atomically, emitting the effect stream to the journal, or roll the
// graph back byte-identical to its pre-transaction state. Savepoints are
// marks into the staged-effect log; ROLLBACK TO reverses back to a mark.
//
// The package carries the engine's observability surface: an OpenTelemetry
// meter records commit latency, fixpoint iteration counts, and constraint
// check counts, and a tracer spans each commit.
package txn

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mewdb/mew/pkg/ast"
	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/constraint"
	"github.com/mewdb/mew/pkg/glyph"
	"github.com/mewdb/mew/pkg/journal"
	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/mutate"
	"github.com/mewdb/mew/pkg/pool"
	"github.com/mewdb/mew/pkg/rule"
)

const otelName = "github.com/mewdb/mew/pkg/txn"

// Manager mints transactions for one Session and owns the journal the
// commit stream is appended to.
type Manager struct {
	jrnl   journal.Journal
	nextID atomic.Uint64

	tracer        trace.Tracer
	commitLatency metric.Float64Histogram
	fixpointIters metric.Int64Histogram
	checksRun     metric.Int64Counter
	rollbacks     metric.Int64Counter
}

// NewManager builds a Manager appending commits to jrnl (NoopJournal for
// in-memory-only sessions).
func NewManager(jrnl journal.Journal) *Manager {
	meter := otel.Meter(otelName)
	commitLatency, _ := meter.Float64Histogram("mew.txn.commit.latency",
		metric.WithDescription("Wall time of transaction commits"), metric.WithUnit("ms"))
	fixpointIters, _ := meter.Int64Histogram("mew.txn.rule.iterations",
		metric.WithDescription("Rule fixpoint iterations per transaction"))
	checksRun, _ := meter.Int64Counter("mew.txn.constraint.checks",
		metric.WithDescription("Constraint check passes run"))
	rollbacks, _ := meter.Int64Counter("mew.txn.rollbacks",
		metric.WithDescription("Transactions rolled back"))
	return &Manager{
		jrnl:          jrnl,
		tracer:        otel.Tracer(otelName),
		commitLatency: commitLatency,
		fixpointIters: fixpointIters,
		checksRun:     checksRun,
		rollbacks:     rollbacks,
	}
}

// Journal returns the manager's journal.
func (m *Manager) Journal() journal.Journal { return m.jrnl }

// LastTxnID returns the most recently minted transaction id.
func (m *Manager) LastTxnID() uint64 { return m.nextID.Load() }

type savepoint struct {
	name string
	mark int
}

// Txn is one in-flight transaction: the staged effect log, the executor,
// rule engine, and checker bound to it, and the frozen now() every default
// and rule action observes.
type Txn struct {
	m   *Manager
	g   *glyph.Graph
	cfg config.Engine

	ID  uint64
	now time.Time

	fx       *mutate.Effects
	exec     *mutate.Executor
	rules    *rule.Engine
	checker  *constraint.Checker
	warnings []constraint.Warning
	saves    []savepoint
	done     bool
}

// Begin opens a transaction against g, capturing the transaction clock and
// freezing now().
func (m *Manager) Begin(ctx context.Context, g *glyph.Graph, cfg config.Engine) *Txn {
	now := time.Now().UTC()
	t := &Txn{
		m:   m,
		g:   g,
		cfg: cfg,
		ID:  m.nextID.Add(1),
		now: now,
		fx:  &mutate.Effects{},
	}
	t.exec = mutate.NewExecutor(ctx, g, cfg, now)
	t.rules = rule.New(g, cfg, t.exec)
	t.checker = constraint.NewChecker(g, cfg)
	return t
}

// Now returns the transaction's frozen now() value.
func (t *Txn) Now() time.Time { return t.now }

// Effects exposes the staged effect log (read-only use: RETURNING counters,
// DRY RUN reporting).
func (t *Txn) Effects() *mutate.Effects { return t.fx }

// Executor exposes the transaction's mutation executor for callers that
// iterate bindings themselves (compound MATCH, INVOKE).
func (t *Txn) Executor() *mutate.Executor { return t.exec }

// Rules exposes the transaction's rule engine (INVOKE dispatch).
func (t *Txn) Rules() *rule.Engine { return t.rules }

// Apply stages one user action and runs the immediate constraint checks on
// the state it produced. A failure here leaves the statement's own effects
// rolled back; the caller decides whether the whole transaction dies (it
// must, for hard violations inside an explicit transaction).
func (t *Txn) Apply(ctx context.Context, act ast.Action, b pool.Bindings) (mutate.Outcome, error) {
	if t.done {
		return mutate.Outcome{}, mewerr.Internal("txn: apply on a finished transaction")
	}
	mark := t.fx.Mark()
	out, err := t.exec.Apply(act, b, t.fx)
	if err != nil {
		_ = mutate.Rollback(t.g, t.fx, mark)
		return out, err
	}
	warns, err := t.checker.CheckImmediate(ctx, t.fx, mark)
	t.m.checksRun.Add(ctx, 1)
	if err != nil {
		_ = mutate.Rollback(t.g, t.fx, mark)
		return out, err
	}
	t.warnings = append(t.warnings, warns...)
	return out, nil
}

// Savepoint records a named mark into the staged-effect log.
func (t *Txn) Savepoint(name string) {
	t.saves = append(t.saves, savepoint{name: name, mark: t.fx.Mark()})
}

// RollbackTo reverses every effect staged after the named savepoint.
func (t *Txn) RollbackTo(name string) error {
	for i := len(t.saves) - 1; i >= 0; i-- {
		if t.saves[i].name == name {
			err := mutate.Rollback(t.g, t.fx, t.saves[i].mark)
			t.saves = t.saves[:i+1]
			return err
		}
	}
	return mewerr.NotFound("savepoint", name)
}

// Result is the mutation result reported back to the client.
type Result struct {
	Success       bool
	NodesCreated  int
	NodesModified int
	NodesDeleted  int
	EdgesCreated  int
	EdgesDeleted  int
	Warnings      []constraint.Warning
	RuleIters     int
}

// Commit drives the transaction to its conclusion: rule fixpoint, then the
// full constraint check, then atomic apply + journal append. Any failure
// rolls back every staged effect, rule-derived ones included.
func (t *Txn) Commit(ctx context.Context) (*Result, error) {
	if t.done {
		return nil, mewerr.Internal("txn: commit on a finished transaction")
	}
	ctx, span := t.m.tracer.Start(ctx, "mew.txn.commit",
		trace.WithAttributes(attribute.Int64("mew.txn.id", int64(t.ID))))
	defer span.End()
	start := time.Now()

	iters, err := t.rules.RunFixpoint(ctx, t.fx, 0)
	t.m.fixpointIters.Record(ctx, int64(iters))
	if err != nil {
		t.rollback()
		return nil, err
	}
	warns, err := t.checker.CheckCommit(ctx, t.fx)
	t.m.checksRun.Add(ctx, 1)
	if err != nil {
		t.rollback()
		return nil, err
	}
	t.warnings = append(t.warnings, warns...)

	if !t.fx.Empty() {
		if err := t.m.jrnl.Append(ctx, t.fx.ToJournal(t.g, t.ID, t.now)); err != nil {
			t.rollback()
			return nil, mewerr.Internal("txn: journal append failed: " + err.Error())
		}
	}
	t.done = true
	t.m.commitLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000.0)
	return &Result{
		Success:       true,
		NodesCreated:  t.fx.NodesCreated,
		NodesModified: t.fx.NodesModified,
		NodesDeleted:  t.fx.NodesDeleted,
		EdgesCreated:  t.fx.EdgesCreated,
		EdgesDeleted:  t.fx.EdgesDeleted,
		Warnings:      t.warnings,
		RuleIters:     iters,
	}, nil
}

// Validate runs the rule fixpoint and the commit-time constraint sweep
// without committing; this is DRY RUN's pipeline. The caller still owns the
// transaction and must Rollback it.
func (t *Txn) Validate(ctx context.Context) (*Result, error) {
	iters, err := t.rules.RunFixpoint(ctx, t.fx, 0)
	if err != nil {
		return nil, err
	}
	warns, err := t.checker.CheckCommit(ctx, t.fx)
	if err != nil {
		return nil, err
	}
	return &Result{
		Success:       true,
		NodesCreated:  t.fx.NodesCreated,
		NodesModified: t.fx.NodesModified,
		NodesDeleted:  t.fx.NodesDeleted,
		EdgesCreated:  t.fx.EdgesCreated,
		EdgesDeleted:  t.fx.EdgesDeleted,
		Warnings:      append(append([]constraint.Warning{}, t.warnings...), warns...),
		RuleIters:     iters,
	}, nil
}

// Rollback discards the whole transaction, restoring the pre-transaction
// graph.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.rollback()
}

func (t *Txn) rollback() {
	_ = mutate.Rollback(t.g, t.fx, 0)
	t.m.rollbacks.Add(context.Background(), 1)
	t.done = true
}

// Done reports whether the transaction has committed or rolled back.
func (t *Txn) Done() bool { return t.done }

// Package pool provides sync.Pool-backed reuse of the query engine's
// hottest-path allocations: result rows and variable-binding maps. Rows are
// typed ([]values.Value) rather than generic []interface{}, since every
// consumer in the query engine already works in those types.
package pool

import (
	"sync"

	"github.com/mewdb/mew/pkg/values"
)

// Row is one result row: ordered scalar values matching a RETURN clause.
type Row []values.Value

// Bindings maps pattern variable names to resolved glyphs or scalars during
// pattern matching and mutation execution.
type Bindings map[string]values.Value

// Config configures pooling behavior.
type Config struct {
	Enabled bool
	MaxSize int
}

var global = Config{Enabled: true, MaxSize: 1000}

// Configure sets the global pool configuration; call once during startup,
// before the query engine allocates any rows.
func Configure(c Config) {
	global = c
	initPools()
}

func IsEnabled() bool { return global.Enabled }

var (
	rowPool      sync.Pool
	bindingsPool sync.Pool
)

func init() { initPools() }

func initPools() {
	rowPool = sync.Pool{New: func() any { return make(Row, 0, 8) }}
	bindingsPool = sync.Pool{New: func() any { return make(Bindings, 8) }}
}

// GetRow returns a zero-length Row with spare capacity from the pool.
func GetRow() Row {
	if !global.Enabled {
		return make(Row, 0, 8)
	}
	return rowPool.Get().(Row)[:0]
}

// PutRow returns a Row to the pool after clearing its contents.
func PutRow(r Row) {
	if !global.Enabled {
		return
	}
	if cap(r) > global.MaxSize {
		return
	}
	for i := range r {
		r[i] = values.Value{}
	}
	rowPool.Put(r[:0])
}

// GetBindings returns an empty Bindings map from the pool.
func GetBindings() Bindings {
	if !global.Enabled {
		return make(Bindings, 8)
	}
	b := bindingsPool.Get().(Bindings)
	for k := range b {
		delete(b, k)
	}
	return b
}

// PutBindings returns a Bindings map to the pool after clearing it.
func PutBindings(b Bindings) {
	if !global.Enabled || b == nil {
		return
	}
	if len(b) > global.MaxSize {
		return
	}
	for k := range b {
		delete(b, k)
	}
	bindingsPool.Put(b)
}

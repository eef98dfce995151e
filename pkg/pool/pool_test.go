package pool

import (
	"sync"
	"testing"

	"github.com/mewdb/mew/pkg/values"
	"github.com/stretchr/testify/assert"
)

func TestConfigure(t *testing.T) {
	orig := global
	defer Configure(orig)

	Configure(Config{Enabled: true, MaxSize: 500})
	assert.True(t, IsEnabled())
	assert.Equal(t, 500, global.MaxSize)

	Configure(Config{Enabled: false, MaxSize: 1000})
	assert.False(t, IsEnabled())
}

func TestRowPoolGetPutClearsContents(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 1000})
	defer Configure(Config{Enabled: true, MaxSize: 1000})

	r := GetRow()
	assert.Equal(t, 0, len(r))
	r = append(r, values.NewInt(7))
	PutRow(r)

	r2 := GetRow()
	assert.Equal(t, 0, len(r2))
	PutRow(r2)
}

func TestRowPoolOversizedNotPooled(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 2})
	defer Configure(Config{Enabled: true, MaxSize: 1000})

	r := make(Row, 0, 100)
	PutRow(r) // must not panic
}

func TestRowPoolDisabled(t *testing.T) {
	Configure(Config{Enabled: false, MaxSize: 1000})
	defer Configure(Config{Enabled: true, MaxSize: 1000})

	r := GetRow()
	assert.NotNil(t, r)
	PutRow(r)
}

func TestBindingsPoolGetPutClearsContents(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 1000})
	defer Configure(Config{Enabled: true, MaxSize: 1000})

	b := GetBindings()
	b["n"] = values.NewInt(1)
	PutBindings(b)

	b2 := GetBindings()
	assert.Equal(t, 0, len(b2))
	PutBindings(b2)
}

func TestBindingsPoolNilPutNoPanic(t *testing.T) {
	PutBindings(nil)
}

func TestConcurrentPoolAccess(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 1000})
	defer Configure(Config{Enabled: true, MaxSize: 1000})

	const goroutines, iterations = 50, 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				r := GetRow()
				r = append(r, values.NewInt(int64(j)))
				PutRow(r)

				b := GetBindings()
				b["id"] = values.NewInt(int64(id))
				PutBindings(b)
			}
		}(i)
	}
	wg.Wait()
}

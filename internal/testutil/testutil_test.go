package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("exec-123")
	assert.Equal(t, "exec-123", gen.Generate())
	assert.Equal(t, "exec-123", gen.Generate())

	assert.Equal(t, "test-execution", NewFixedIDGenerator("").Generate())
}

func TestSequenceIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceIDGenerator("run")

	var wg sync.WaitGroup
	seen := make(chan string, 100)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				seen <- gen.Generate()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]bool)
	for id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, 100)
	assert.Equal(t, "run-101", gen.Generate())
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	assert.Equal(t, start, c.Now())
	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())
}

func TestQuery(t *testing.T) {
	path := TempDatabase(t)
	Query(t, path, "create table t (a integer)")
	Query(t, path, "insert into t (a) values (1), (2)")

	got := Query(t, path, "select a from t order by a")
	assert.Len(t, got, 2)
}

package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflake(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)

	_, err = NewSnowflake(maxWorkerID + 1)
	assert.Error(t, err)

	sf, err := NewSnowflake(1)
	require.NoError(t, err)
	assert.NotNil(t, sf)
}

func TestSnowflake_GenerateUnique(t *testing.T) {
	sf, err := NewSnowflake(7)
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := sf.Generate()
				assert.NoError(t, err)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestSnowflake_ClockBackwards(t *testing.T) {
	sf, err := NewSnowflake(1)
	require.NoError(t, err)

	current := epoch + 10_000
	sf.now = func() int64 { return current }
	_, err = sf.Generate()
	require.NoError(t, err)

	current -= 1_000
	_, err = sf.Generate()
	assert.ErrorIs(t, err, ErrClockMovedBackwards)
}

func TestSnowflake_TransactionNo(t *testing.T) {
	sf, err := NewSnowflake(1)
	require.NoError(t, err)

	first, err := sf.TransactionNo()
	require.NoError(t, err)
	second, err := sf.TransactionNo()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, "TXN"))
	assert.Len(t, first, 22)
	assert.Less(t, first, second)
}

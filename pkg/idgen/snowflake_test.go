package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflake_WorkerRange(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(maxWorkerID + 1)
	assert.Error(t, err)

	g, err := NewSnowflake(maxWorkerID)
	require.NoError(t, err)
	assert.Equal(t, int64(maxWorkerID), (g.Generate()>>workerIDShift)&maxWorkerID)
}

func TestSnowflake_UniqueAndIncreasing(t *testing.T) {
	g, err := NewSnowflake(3)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := int64(0)
			for j := 0; j < 2000; j++ {
				id := g.Generate()
				assert.Greater(t, id, last)
				last = id

				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 8*2000)
}

func TestGenerators(t *testing.T) {
	require.NoError(t, Init(5))

	assert.True(t, strings.HasPrefix(GenerateTransactionNo(), "TXN"))
	assert.True(t, strings.HasPrefix(GenerateTransferRef(), "TRF"))
	assert.True(t, strings.HasPrefix(GeneratePaymentNo(), "SCP"))
	assert.NotEqual(t, GenerateTransferRef(), GenerateTransferRef())
}

package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ReserveOnlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "k", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "k", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	value, found, err := s.Read(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("first"), value)
}

func TestMemoryStore_ReadMissing(t *testing.T) {
	s := NewMemoryStore()

	_, found, err := s.Read(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_WriteOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Reserve(ctx, "k", []byte("v1"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "k", []byte("v2"), time.Minute))

	value, found, err := s.Read(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v2"), value)
}

func TestMemoryStore_RemoveFreesKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Reserve(ctx, "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, "k"))

	ok, err := s.Reserve(ctx, "k", []byte("again"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_ExpiredReadsAsAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Reserve(ctx, "k", []byte("v"), time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, found, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// Expired records no longer block reservation.
	ok, err := s.Reserve(ctx, "k", []byte("fresh"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_ConcurrentReserveSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Reserve(ctx, "contested", []byte("v"), time.Minute)
			if assert.NoError(t, err) && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

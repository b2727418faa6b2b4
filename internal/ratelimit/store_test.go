package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PerKeyBuckets(t *testing.T) {
	s := NewStore(0.001, 2)

	assert.True(t, s.Allow("app/1"))
	assert.True(t, s.Allow("app/1"))
	assert.False(t, s.Allow("app/1"))

	assert.True(t, s.Allow("app/2"), "keys do not share a bucket")
}

func TestStore_Unlimited(t *testing.T) {
	s := NewStore(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, s.Allow("k"))
	}
	assert.NoError(t, s.Limiter("k").Wait(context.Background()))
}

func TestStore_NilAllowsEverything(t *testing.T) {
	var s *Store
	assert.True(t, s.Allow("anything"))
	s.Forget("anything")
}

func TestStore_ForgetResetsBucket(t *testing.T) {
	s := NewStore(0.001, 1)
	assert.True(t, s.Allow("slow"))
	assert.False(t, s.Allow("slow"))

	s.Forget("slow")
	assert.True(t, s.Allow("slow"))
}

func TestStore_WaitHonoursContext(t *testing.T) {
	s := NewStore(0.001, 1)
	require.True(t, s.Allow("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Limiter("k").Wait(ctx))
}

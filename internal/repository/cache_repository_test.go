package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/exam-scheduler-api/pkg/errors"
)

func TestCacheRepositoryWithoutClientAlwaysMisses(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "exam-schedule:result:abc", map[string]int{"n": 1}, time.Minute))
	var out map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "exam-schedule:result:abc", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.DeleteByPattern(ctx, "exam-schedule:*"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositorySurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	repo := NewCacheRepository(client, nil)
	defer repo.Close()
	ctx := context.Background()

	var out map[string]int
	err := repo.Get(ctx, "k", &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.Error(t, repo.Set(ctx, "k", 1, time.Minute))
	assert.Error(t, repo.Ping(ctx))
}

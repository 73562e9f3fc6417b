package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/ehrprep/pkg/common/config"
	"github.com/synaptica-ai/ehrprep/pkg/common/logger"
)

func TestGetRedisIsShared(t *testing.T) {
	logger.Log = logger.Discard()
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisHost: mr.Host(), RedisPort: mr.Port()}

	client := GetRedis(cfg)
	require.NotNil(t, client)
	assert.Same(t, client, GetRedis(&config.Config{RedisHost: "elsewhere", RedisPort: "1"}))

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "vocab", "1", 0).Err())
	got, err := mr.Get("vocab")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	assert.NoError(t, CloseRedis())
}

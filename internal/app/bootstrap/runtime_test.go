package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opdstack/clinic-platform/internal/availability"
	appconfig "github.com/opdstack/clinic-platform/internal/config"
	"github.com/opdstack/clinic-platform/internal/events"
	"github.com/opdstack/clinic-platform/pkg/logging"
)

func TestBuildRedisClient(t *testing.T) {
	logger := logging.New("error")

	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: ""}, logger, false))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	require.NotNil(t, client)
	defer client.Close()

	// Verification against a dead address yields nil instead of a broken client.
	mrDead := miniredis.RunT(t)
	addr := mrDead.Addr()
	mrDead.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logger, true))
}

func TestBuildBrokerSelection(t *testing.T) {
	logger := logging.New("error")

	broker := BuildBroker(nil, &appconfig.Config{}, logger)
	_, ok := broker.(*events.MemoryBroker)
	assert.True(t, ok, "no redis means memory broker")

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
	defer client.Close()

	broker = BuildBroker(client, &appconfig.Config{UseMemoryBus: true}, logger)
	_, ok = broker.(*events.MemoryBroker)
	assert.True(t, ok, "USE_MEMORY_BUS overrides redis")

	broker = BuildBroker(client, &appconfig.Config{}, logger)
	_, ok = broker.(*events.RedisBroker)
	assert.True(t, ok)
}

func TestBuildAvailabilityStoreSelection(t *testing.T) {
	logger := logging.New("error")

	store := BuildAvailabilityStore(nil, logger)
	_, ok := store.(*availability.MemoryStore)
	assert.True(t, ok)

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
	defer client.Close()
	store = BuildAvailabilityStore(client, logger)
	_, ok = store.(*availability.RedisStore)
	assert.True(t, ok)
}

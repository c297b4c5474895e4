package transport

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayBridgesInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hubA := NewHub()
	hubB := NewHub()
	relayA := NewRelay(hubA, rdb)
	relayB := NewRelay(hubB, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relayA.Run(ctx)
	go relayB.Run(ctx)

	local := NewClient(nil, "alice")
	hubA.Subscribe(local, SessionTopic("s1"))
	remote := NewClient(nil, "bob")
	hubB.Subscribe(remote, SessionTopic("s1"))

	// The subscriber loops come up asynchronously; publish until the
	// remote hub sees a delivery.
	published := 0
	require.Eventually(t, func() bool {
		relayA.Publish(SessionTopic("s1"), NewEvent("move_applied", map[string]string{"move": "e2e4"}))
		published++
		return len(remote.send) > 0
	}, 2*time.Second, 20*time.Millisecond)

	// Local delivery happens exactly once per publish: the relay must not
	// re-deliver its own events when they echo back over Redis.
	assert.Eventually(t, func() bool {
		return len(local.send) == published
	}, time.Second, 20*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, local.send, published)
}

func TestRelayPublishSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := NewHub()
	relay := NewRelay(hub, rdb)
	client := NewClient(nil, "alice")
	hub.Subscribe(client, SessionTopic("s1"))

	mr.Close()
	relay.Publish(SessionTopic("s1"), NewEvent("move_applied", nil))

	// Local subscribers still get the event when the bridge is down.
	assert.Len(t, client.send, 1)
}

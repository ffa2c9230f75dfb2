package live

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfiorillo/go-chathub/internal/testutil"
	"github.com/mfiorillo/go-chathub/internal/types"
	"github.com/stretchr/testify/assert"
)

// stubSource serves canned query functions keyed by topic.
type stubSource struct {
	funcs map[string]QueryFunc
}

func (s stubSource) Query(topic string, userId int) (QueryFunc, error) {
	f, ok := s.funcs[topic]
	if !ok {
		return nil, errors.New("unknown topic")
	}
	return f, nil
}

func TestHub_handleSubscribe(t *testing.T) {
	t.Run("loads the query on first subscribe", func(t *testing.T) {
		hub := newTestHub(t)
		hub.SetSource(stubSource{funcs: map[string]QueryFunc{
			"channels": func() (any, error) { return []string{"general"}, nil },
		}})

		c := newTestClient(t, 1)
		hub.handleSubscribe(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Subscribe:   &Subscribe{Topic: "channels"},
			UserId:      c.user.Id,
			client:      c,
		})

		assert.Contains(t, hub.queries, "channels", "expected query to be loaded for the topic")
		assert.Eventually(t, func() bool {
			return len(c.send) == 2
		}, time.Second, 10*time.Millisecond, "expected an ack and an initial update for the subscriber")
	})

	t.Run("unknown topic", func(t *testing.T) {
		hub := newTestHub(t)
		hub.SetSource(stubSource{})

		c := newTestClient(t, 1)
		hub.handleSubscribe(&ClientMessage{
			BaseMessage: BaseMessage{Id: 7, Timestamp: Now()},
			Subscribe:   &Subscribe{Topic: "nope"},
			UserId:      c.user.Id,
			client:      c,
		})

		assert.NotContains(t, hub.queries, "nope", "expected no query for an unknown topic")

		msg := drainUpdate(t, c)
		assert.NotNil(t, msg.Response, "expected a response to be queued")
		assert.Equal(t, 7, msg.Id, "expected response id to match the request")
		assert.Equal(t, 404, msg.Response.ResponseCode, "expected response code to be 404")
	})

	t.Run("loaded query saturated", func(t *testing.T) {
		hub := newTestHub(t)
		q := newLiveQuery("channels", hub, func() (any, error) { return nil, nil })
		q.subscribeChan = make(chan *ClientMessage) // nothing draining it
		hub.queries["channels"] = q

		c := newTestClient(t, 1)
		hub.handleSubscribe(&ClientMessage{
			BaseMessage: BaseMessage{Id: 3, Timestamp: Now()},
			Subscribe:   &Subscribe{Topic: "channels"},
			UserId:      c.user.Id,
			client:      c,
		})

		msg := drainUpdate(t, c)
		assert.NotNil(t, msg.Response, "expected a response to be queued")
		assert.Equal(t, 503, msg.Response.ResponseCode, "expected response code to be 503")
	})
}

func TestHub_Invalidate(t *testing.T) {
	hub := newTestHub(t)

	hub.Invalidate("channels")
	assert.Len(t, hub.invalidateChan, 1, "expected the invalidation to be queued")

	for len(hub.invalidateChan) < cap(hub.invalidateChan) {
		hub.invalidateChan <- "filler"
	}
	hub.Invalidate("channels") // must not block when saturated

	var zero Hub
	zero.Invalidate("channels") // a hub that never ran is a no-op notifier
}

func TestHub_Run(t *testing.T) {
	var calls atomic.Int32
	hub := newTestHub(t)
	hub.SetSource(stubSource{funcs: map[string]QueryFunc{
		"channels": func() (any, error) {
			calls.Add(1)
			return []string{"general"}, nil
		},
	}})

	go hub.Run()

	c := NewClient(types.User{Id: 1, DisplayName: "testuser"}, nil, hub, testutil.TestLogger(t))
	hub.RegisterChan <- c
	assert.Eventually(t, func() bool {
		hub.clientsLock.Lock()
		defer hub.clientsLock.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, time.Second, 10*time.Millisecond, "expected client to be registered")

	ok := hub.Subscribe(&ClientMessage{
		BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
		Subscribe:   &Subscribe{Topic: "channels"},
		UserId:      c.user.Id,
		client:      c,
	})
	assert.True(t, ok, "expected subscribe request to be accepted")
	assert.Eventually(t, func() bool {
		return calls.Load() == 1 && len(c.send) == 2
	}, time.Second, 10*time.Millisecond, "expected the query to run once and the subscriber to get an ack and an update")

	hub.Invalidate("channels")
	assert.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 10*time.Millisecond, "expected an invalidation to re-run the query")

	hub.deRegisterChan <- c
	assert.Eventually(t, func() bool {
		hub.clientsLock.Lock()
		defer hub.clientsLock.Unlock()
		_, ok := hub.clients[c]
		return !ok
	}, time.Second, 10*time.Millisecond, "expected client to be deregistered")

	hub.Shutdown()

	select {
	case <-hub.done:
		// loop exited and all queries unloaded
	default:
		t.Error("expected hub loop to have exited after shutdown")
	}
}

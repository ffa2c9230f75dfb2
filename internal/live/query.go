package live

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// idleQueryTimeout is how long a query with no subscribers stays loaded.
const idleQueryTimeout = 5 * time.Second

// QueryFunc re-executes a read operation against current store state.
type QueryFunc func() (any, error)

type exitReq struct {
	done chan bool
}

// liveQuery owns one topic: the set of subscribed clients, the query that
// recomputes the topic's result, and the last result pushed. All state is
// confined to the start loop.
type liveQuery struct {
	topic           string
	hub             *Hub
	run             QueryFunc
	subscribeChan   chan *ClientMessage
	unsubscribeChan chan *ClientMessage
	refreshChan     chan struct{}
	subscribers     map[*Client]struct{}
	subscribersLock sync.RWMutex
	lastResult      []byte
	log             *log.Logger
	// killTimer unloads the query once the last subscriber is gone
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func newLiveQuery(topic string, hub *Hub, run QueryFunc) *liveQuery {
	killTimer := time.NewTimer(idleQueryTimeout)
	killTimer.Stop()

	return &liveQuery{
		topic:           topic,
		hub:             hub,
		run:             run,
		subscribeChan:   make(chan *ClientMessage, 256),
		unsubscribeChan: make(chan *ClientMessage, 256),
		refreshChan:     make(chan struct{}, 16),
		subscribers:     make(map[*Client]struct{}),
		log:             hub.log,
		killTimer:       killTimer,
		exit:            make(chan exitReq),
		done:            make(chan struct{}),
	}
}

func (q *liveQuery) start() {
	q.log.Printf("starting query %q", q.topic)

	for {
		select {
		case sub := <-q.subscribeChan:
			q.handleSubscribe(sub)
		case unsub := <-q.unsubscribeChan:
			q.handleUnsubscribe(unsub)
		case <-q.refreshChan:
			q.refresh()
		case <-q.killTimer.C:
			q.handleQueryTimeout()
		case e := <-q.exit:
			q.handleQueryExit(e)
			return
		}
	}
}

func (q *liveQuery) handleSubscribe(sub *ClientMessage) {
	// stop the kill timer since we have a new subscriber
	q.killTimer.Stop()

	c := sub.client
	q.addSubscriber(c)

	result, err := q.execute()
	if err != nil {
		q.log.Printf("query %q: %v", q.topic, err)
		c.queueMessage(ErrInternalError(sub.Id))
		return
	}
	q.lastResult = result

	c.queueMessage(NoErrOK(sub.Id, q.topic))

	// the new subscriber always gets the current result, even if it matches
	// what everyone else already saw
	c.queueMessage(q.updateMessage(result))
	q.hub.stats.Incr(MetricUpdatesPushed)
}

func (q *liveQuery) handleUnsubscribe(unsub *ClientMessage) {
	q.removeSubscriber(unsub.client)

	// only user-initiated requests get an ack; connection cleanup does not
	if unsub.UserId != 0 {
		unsub.client.queueMessage(NoErrOK(unsub.Id, q.topic))
	}
}

// refresh re-executes the query and pushes the result to every subscriber,
// unless it is byte-identical to the last pushed result.
func (q *liveQuery) refresh() {
	result, err := q.execute()
	if err != nil {
		q.log.Printf("query %q: %v", q.topic, err)
		return
	}

	if bytes.Equal(result, q.lastResult) {
		q.hub.stats.Incr(MetricUpdatesSuppressed)
		return
	}
	q.lastResult = result

	q.broadcast(q.updateMessage(result))
}

func (q *liveQuery) execute() ([]byte, error) {
	result, err := q.run()
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

func (q *liveQuery) updateMessage(result []byte) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Update: &Update{
			Topic:  q.topic,
			Result: result,
		},
	}
}

func (q *liveQuery) handleQueryTimeout() {
	q.log.Printf("query %q timed out", q.topic)
	q.hub.unloadChan <- q.topic
}

func (q *liveQuery) handleQueryExit(e exitReq) {
	q.log.Printf("query %q is exiting", q.topic)

	q.subscribersLock.Lock()
	for c := range q.subscribers {
		c.delTopic(q.topic)
	}
	q.subscribersLock.Unlock()

	// notify the hub the query is done cleaning up
	if e.done != nil {
		e.done <- true
	}
	close(q.done)
}

func (q *liveQuery) addSubscriber(c *Client) {
	q.subscribersLock.Lock()
	defer q.subscribersLock.Unlock()

	q.subscribers[c] = struct{}{}
	c.addTopic(q)
}

func (q *liveQuery) removeSubscriber(c *Client) {
	q.subscribersLock.Lock()
	defer q.subscribersLock.Unlock()

	if _, ok := q.subscribers[c]; !ok {
		q.log.Printf("client %q not subscribed to %q", c.sessionId, q.topic)
		return
	}

	delete(q.subscribers, c)
	c.delTopic(q.topic)

	// last subscriber is gone, start the kill timer
	if len(q.subscribers) == 0 {
		q.log.Printf("no subscribers on %q, starting kill timer", q.topic)
		q.killTimer.Reset(idleQueryTimeout)
	}
}

func (q *liveQuery) broadcast(msg *ServerMessage) {
	q.subscribersLock.RLock()
	defer q.subscribersLock.RUnlock()

	for c := range q.subscribers {
		if c.queueMessage(msg) {
			q.hub.stats.Incr(MetricUpdatesPushed)
		}
	}
}

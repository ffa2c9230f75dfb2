package live

import (
	"log"
	"sync"

	"github.com/mfiorillo/go-chathub/internal/stats"
)

// Metric names registered by the hub.
const (
	MetricActiveClients     = "ActiveClients"
	MetricActiveQueries     = "ActiveQueries"
	MetricUpdatesPushed     = "UpdatesPushed"
	MetricUpdatesSuppressed = "UpdatesSuppressed"
)

// QuerySource builds the read operation behind a topic. It returns an error
// for topics it does not recognize. The returned QueryFunc runs with the
// identity of the subscriber that first loaded the topic; results are
// identical for every authenticated subscriber.
type QuerySource interface {
	Query(topic string, userId int) (QueryFunc, error)
}

// Hub tracks connected clients and loaded queries, routes subscribe
// requests, and fans write invalidations out to the affected query.
type Hub struct {
	log            *log.Logger
	stats          stats.Provider
	source         QuerySource
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	subscribeChan  chan *ClientMessage
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	unloadChan     chan string
	invalidateChan chan string
	queries        map[string]*liveQuery
	stop           chan struct{}
	done           chan struct{}
}

func NewHub(logger *log.Logger, statsProvider stats.Provider) *Hub {
	for _, name := range []string{
		MetricActiveClients,
		MetricActiveQueries,
		MetricUpdatesPushed,
		MetricUpdatesSuppressed,
	} {
		statsProvider.RegisterMetric(name)
	}

	return &Hub{
		log:            logger,
		stats:          statsProvider,
		clients:        make(map[*Client]struct{}),
		subscribeChan:  make(chan *ClientMessage, 256),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadChan:     make(chan string),
		invalidateChan: make(chan string, 256),
		queries:        make(map[string]*liveQuery),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// SetSource wires the query source. Must be called before Run.
func (h *Hub) SetSource(source QuerySource) {
	h.source = source
}

func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.subscribeChan:
			h.handleSubscribe(sub)
		case client := <-h.RegisterChan:
			h.log.Printf("adding connection %q for %q", client.sessionId, client.user.DisplayName)
			h.addClient(client)
			h.stats.Incr(MetricActiveClients)
		case client := <-h.deRegisterChan:
			h.log.Printf("removing connection %q for %q", client.sessionId, client.user.DisplayName)
			h.removeClient(client)
			h.stats.Decr(MetricActiveClients)
		case topic := <-h.unloadChan:
			if q, ok := h.queries[topic]; ok {
				h.unloadQuery(topic)
				done := make(chan bool)
				q.exit <- exitReq{done: done}
				<-done
			}
		case topic := <-h.invalidateChan:
			if q, ok := h.queries[topic]; ok {
				select {
				case q.refreshChan <- struct{}{}:
				default:
					// a refresh is already pending, which covers this write
				}
			}
		case <-h.stop:
			h.log.Println("shutting down queries")
			for _, q := range h.queries {
				h.log.Println("shutting down query", q.topic)
				done := make(chan bool)
				q.exit <- exitReq{done: done}
				<-done
			}

			close(h.done)
			return
		}
	}
}

// Invalidate reports that a write touched the given topic. Safe to call
// from any goroutine; drops the signal when the hub is saturated because a
// pending refresh already re-reads current state.
func (h *Hub) Invalidate(topic string) {
	select {
	case h.invalidateChan <- topic:
	default:
	}
}

// Subscribe routes a subscribe request into the hub loop.
func (h *Hub) Subscribe(msg *ClientMessage) bool {
	select {
	case h.subscribeChan <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) handleSubscribe(sub *ClientMessage) {
	topic := sub.Subscribe.Topic
	if q, ok := h.queries[topic]; ok {
		select {
		case q.subscribeChan <- sub:
		default:
			h.log.Printf("subscribe channel full on query %q", topic)
			sub.client.queueMessage(ErrServiceUnavailable(sub.Id))
		}
		return
	}

	run, err := h.source.Query(topic, sub.GetUserId())
	if err != nil {
		h.log.Printf("unknown topic %q: %v", topic, err)
		sub.client.queueMessage(ErrTopicNotFound(sub.Id))
		return
	}

	q := newLiveQuery(topic, h, run)
	h.queries[topic] = q
	h.stats.Incr(MetricActiveQueries)
	q.subscribeChan <- sub

	go q.start()
}

func (h *Hub) addClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) removeClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	delete(h.clients, c)
}

func (h *Hub) unloadQuery(topic string) {
	if _, ok := h.queries[topic]; ok {
		h.log.Printf("unloading query %q", topic)
		delete(h.queries, topic)
		h.stats.Decr(MetricActiveQueries)
	}
}

func (h *Hub) Shutdown() {
	h.log.Println("received shutdown signal")
	h.clientsLock.Lock()
	for c := range h.clients {
		c.stopClient()
	}
	h.clientsLock.Unlock()

	close(h.stop)

	<-h.done
}

package live

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mfiorillo/go-chathub/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is one websocket connection of an authenticated user. A user may
// hold several connections; each carries its own subscriptions.
type Client struct {
	conn       *websocket.Conn
	hub        *Hub
	log        *log.Logger
	user       types.User
	sessionId  string
	send       chan *ServerMessage
	topics     map[string]*liveQuery
	topicsLock sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, hub *Hub, l *log.Logger) *Client {
	return &Client{
		conn:      conn,
		hub:       hub,
		log:       l,
		user:      user,
		sessionId: uuid.NewString(),
		send:      make(chan *ServerMessage, 256),
		topics:    make(map[string]*liveQuery),
		stop:      make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write exiting for %q", c.sessionId)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("read exiting for %q", c.sessionId)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		switch {
		case msg.Subscribe != nil:
			c.subscribe(&msg)
		case msg.Unsubscribe != nil:
			c.unsubscribe(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *Client) subscribe(msg *ClientMessage) {
	if !c.hub.Subscribe(msg) {
		c.log.Printf("subscribe channel full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) unsubscribe(msg *ClientMessage) {
	q, ok := c.getTopic(msg.Unsubscribe.Topic)
	if !ok {
		c.queueMessage(ErrTopicNotFound(msg.Id))
		return
	}

	select {
	case q.unsubscribeChan <- msg:
	default:
		c.log.Printf("unsubscribe channel full for query %q", q.topic)
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.hub.deRegisterChan <- c
	c.unsubscribeAll()
	c.stopClient()
}

// unsubscribeAll drops every subscription held by this connection. Used
// when the connection goes away; the queries ack nothing because the
// request carries no user id.
func (c *Client) unsubscribeAll() {
	c.topicsLock.RLock()
	defer c.topicsLock.RUnlock()

	for _, q := range c.topics {
		q.unsubscribeChan <- &ClientMessage{
			Unsubscribe: &Unsubscribe{Topic: q.topic},
			client:      c,
		}
	}
}

func (c *Client) addTopic(q *liveQuery) {
	c.topicsLock.Lock()
	defer c.topicsLock.Unlock()

	c.topics[q.topic] = q
}

func (c *Client) delTopic(topic string) {
	c.topicsLock.Lock()
	defer c.topicsLock.Unlock()

	delete(c.topics, topic)
}

func (c *Client) getTopic(topic string) (*liveQuery, bool) {
	c.topicsLock.RLock()
	defer c.topicsLock.RUnlock()

	q, ok := c.topics[topic]
	return q, ok
}

package live

import (
	"encoding/json"
	"net/http"
	"time"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a request from a subscriber. Exactly one of the payload
// fields is set.
type ClientMessage struct {
	BaseMessage
	Subscribe   *Subscribe   `json:"subscribe,omitempty"`
	Unsubscribe *Unsubscribe `json:"unsubscribe,omitempty"`
	UserId      int          `json:"-"`
	client      *Client      `json:"-"`
}

func (cm *ClientMessage) GetUserId() int {
	if cm.UserId != 0 {
		return cm.UserId
	}

	if cm.client != nil {
		return cm.client.user.Id
	}

	return 0
}

type Subscribe struct {
	Topic string `json:"topic"`
}

type Unsubscribe struct {
	Topic string `json:"topic"`
}

// ServerMessage is pushed to a subscriber: either a response to one of its
// requests (correlated by id) or an unsolicited update for a topic it
// subscribed to.
type ServerMessage struct {
	BaseMessage
	Response *Response `json:"response,omitempty"`
	Update   *Update   `json:"update,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Topic        string `json:"topic,omitempty"`
}

// Update carries the full re-executed query result for a topic. Result is
// kept serialized so the hub can compare consecutive results byte for byte.
type Update struct {
	Topic  string          `json:"topic"`
	Result json.RawMessage `json:"result"`
}

func NoErrOK(id int, topic string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Topic:        topic,
		},
	}
}

func ErrTopicNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "topic not found",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

package chat

import "strings"

// Topics are the dependency keys of the live subscription layer. A write
// operation publishes the topic it touched; subscribers of that topic get
// the read re-executed and pushed.
const (
	TopicChannels       = "channels"
	messagesTopicPrefix = "messages/"
)

// Notifier receives an invalidation after every successful write.
type Notifier interface {
	Invalidate(topic string)
}

func TopicChannelMessages(channelId string) string {
	return messagesTopicPrefix + channelId
}

// ParseMessagesTopic extracts the channel id from a messages topic.
func ParseMessagesTopic(topic string) (string, bool) {
	channelId, ok := strings.CutPrefix(topic, messagesTopicPrefix)
	if !ok || channelId == "" {
		return "", false
	}

	return channelId, true
}

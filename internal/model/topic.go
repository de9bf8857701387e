package model

import "fmt"

// Topic represents a named category of events a session can subscribe to.
type Topic string

const (
	TopicBlocks          Topic = "blocks"
	TopicOwnBlocks       Topic = "ownBlocks"
	TopicTransactions    Topic = "transactions"
	TopicOwnTransactions Topic = "ownTransactions"
	TopicNames           Topic = "names"
	TopicOwnNames        Topic = "ownNames"
	TopicMotd            Topic = "motd"
)

// AllTopics lists every valid topic in canonical order.
var AllTopics = []Topic{
	TopicBlocks,
	TopicOwnBlocks,
	TopicTransactions,
	TopicOwnTransactions,
	TopicNames,
	TopicOwnNames,
	TopicMotd,
}

var topicSet = func() map[Topic]struct{} {
	m := make(map[Topic]struct{}, len(AllTopics))
	for _, t := range AllTopics {
		m[t] = struct{}{}
	}
	return m
}()

// ParseTopic parses the canonical string form of a topic.
// Unrecognized strings return ErrUnknownTopic; nothing is silently mapped.
func ParseTopic(s string) (Topic, error) {
	t := Topic(s)
	if _, ok := topicSet[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, s)
	}
	return t, nil
}

// String returns the canonical wire form of the topic.
func (t Topic) String() string {
	return string(t)
}

// TopicStrings renders a slice of topics to their string forms.
func TopicStrings(topics []Topic) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		out = append(out, t.String())
	}
	return out
}

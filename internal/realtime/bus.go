package realtime

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Topic enumerates the closed set of message types on the bus.
type Topic string

const (
	TopicNodeStatus      Topic = "node_status"
	TopicJobProgress     Topic = "job_progress"
	TopicCollectionStats Topic = "collection_stats"
	TopicError           Topic = "error"
)

// ProjectAll subscribes to every project's events.
const ProjectAll = "all"

// Message is the envelope delivered to subscribers.
type Message struct {
	Type      Topic     `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Project   string    `json:"project,omitempty"`
	Data      any       `json:"data"`
}

// JobProgress is the payload for TopicJobProgress.
type JobProgress struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Phase    string `json:"phase"`
	Detail   string `json:"detail,omitempty"`
}

// CollectionStats is the payload for TopicCollectionStats.
type CollectionStats struct {
	Collection string `json:"collection"`
	PointCount uint64 `json:"point_count"`
}

// NodeStatus is the payload for TopicNodeStatus.
type NodeStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
}

// ErrorEvent is the payload for TopicError.
type ErrorEvent struct {
	Component string `json:"component"`
	Message   string `json:"message"`
	JobID     string `json:"job_id,omitempty"`
}

const subscriberBuffer = 64

type subscription struct {
	project string
	topics  map[Topic]struct{}
	ch      chan Message
}

// Bus is an in-process, best-effort pub/sub. No replay, no persistence;
// durable state lives in the catalog's job rows.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Subscribe registers a filter. An empty topic list receives every topic;
// project ProjectAll receives every project. The returned cancel func must
// be called to release the subscription.
func (b *Bus) Subscribe(project string, topics []Topic) (<-chan Message, func()) {
	sub := &subscription{
		project: project,
		ch:      make(chan Message, subscriberBuffer),
	}
	if len(topics) > 0 {
		sub.topics = make(map[Topic]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish fans a message out to matching subscribers. Delivery is
// non-blocking; a subscriber with a full buffer misses the message.
func (b *Bus) Publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.project != ProjectAll && msg.Project != "" && sub.project != msg.Project {
			continue
		}
		if sub.topics != nil {
			if _, ok := sub.topics[msg.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- msg:
		default:
			log.Debug().Str("type", string(msg.Type)).Msg("dropping realtime message for slow subscriber")
		}
	}
}

// PublishJobProgress is a convenience wrapper used by the pipelines.
func (b *Bus) PublishJobProgress(project string, p JobProgress) {
	b.Publish(Message{Type: TopicJobProgress, Project: project, Data: p})
}

// PublishError reports a component failure once per occurrence.
func (b *Bus) PublishError(project string, e ErrorEvent) {
	b.Publish(Message{Type: TopicError, Project: project, Data: e})
}

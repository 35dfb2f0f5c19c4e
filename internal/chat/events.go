package chat

import (
	"context"
	"log/slog"

	"github.com/nfrund/huddle/internal/pubsub"
)

// IdentityActivity describes an identity entering or leaving presence.
type IdentityActivity struct {
	Identity     string `json:"identity"`
	ConnectionID string `json:"connection_id"`
	Reason       string `json:"reason,omitempty"`
}

// MessageActivity describes a change to the message log.
type MessageActivity struct {
	ID        uint64 `json:"id"`
	Index     int    `json:"index"`
	Author    string `json:"author"`
	Direct    bool   `json:"direct,omitempty"`
	Moderator string `json:"moderator,omitempty"`
}

var (
	TopicIdentityJoined = pubsub.NewEvent[IdentityActivity]("chat.identity.joined")
	TopicIdentityLeft   = pubsub.NewEvent[IdentityActivity]("chat.identity.left")

	TopicMessageAppended = pubsub.NewEvent[MessageActivity]("chat.message.appended")
	TopicMessageEdited   = pubsub.NewEvent[MessageActivity]("chat.message.edited")
	TopicMessageDeleted  = pubsub.NewEvent[MessageActivity]("chat.message.deleted")
)

// ActivityTopics lists every topic the coordinator publishes to.
func ActivityTopics() []string {
	return []string{
		TopicIdentityJoined.Name(),
		TopicIdentityLeft.Name(),
		TopicMessageAppended.Name(),
		TopicMessageEdited.Name(),
		TopicMessageDeleted.Name(),
	}
}

// Reasons attached to IdentityActivity.
const (
	ReasonLeave      = "leave"
	ReasonDisconnect = "disconnect"
	ReasonReplaced   = "replaced"
)

// SubscribeActivityLog logs every activity event at info level.
func SubscribeActivityLog(ctx context.Context, sub pubsub.Subscriber, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "activity")

	for _, ev := range []pubsub.Event[IdentityActivity]{TopicIdentityJoined, TopicIdentityLeft} {
		topic := ev.Name()
		err := pubsub.Subscribe(ctx, sub, ev, func(ctx context.Context, a IdentityActivity, _ pubsub.Message) error {
			logger.Info("Presence changed", "topic", topic, "identity", a.Identity, "conn", a.ConnectionID, "reason", a.Reason)
			return nil
		})
		if err != nil {
			return err
		}
	}

	for _, ev := range []pubsub.Event[MessageActivity]{TopicMessageAppended, TopicMessageEdited, TopicMessageDeleted} {
		topic := ev.Name()
		err := pubsub.Subscribe(ctx, sub, ev, func(ctx context.Context, a MessageActivity, _ pubsub.Message) error {
			logger.Info("Message log changed", "topic", topic, "id", a.ID, "index", a.Index,
				"author", a.Author, "direct", a.Direct, "moderator", a.Moderator)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

package session

import (
	"quotespeak/internal/app/playback"
	"quotespeak/pkg/pubsub"
)

func EventsTopic(tenantID string) string {
	return "playback:" + tenantID
}

// PublishEvents forwards every playback event to the tenant's pubsub topic.
func PublishEvents(ps *pubsub.PubSub) playback.Option {
	return playback.WithObserver(func(e playback.Event) {
		ps.Publish(EventsTopic(e.Tenant), e)
	})
}

package telemetry

import (
	"context"

	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

// Bridge subscribes a RedisPublisher and/or an InfluxWriter to backend
// under id and forwards every radio.Event to whichever sinks are
// non-nil, mirroring internal/eventsink.Bridge's subscribe-and-forward
// shape. The returned function unsubscribes and stops forwarding.
func Bridge(backend radio.Backend, pub *RedisPublisher, infl *InfluxWriter, id radio.SubscriberID) func() {
	ch := make(chan radio.Event, 32)
	backend.Subscribe(id, ch)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				ctx := context.Background()
				if pub != nil {
					pub.Publish(ctx, ev)
				}
				if infl != nil {
					infl.Write(ctx, ev)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		backend.Unsubscribe(id)
		close(done)
	}
}

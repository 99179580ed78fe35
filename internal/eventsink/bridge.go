package eventsink

import "github.com/blasphemetheus/d2d-responder/internal/radio"

// Bridge subscribes sink to backend under id and forwards every
// radio.Event onto the sink's contract, translating the facade's
// event shape into the sink's TX/RX/Event calls. The returned function
// unsubscribes and stops the forwarding goroutine.
func Bridge(backend radio.Backend, sink Sink, id radio.SubscriberID) func() {
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
				switch ev.Kind {
				case radio.EventTx:
					sink.TX(ev.Payload)
				case radio.EventRx:
					sink.RX(ev.Frame.Bytes, ev.Frame.RssiDbm, ev.Frame.SnrDb)
				case radio.EventOther:
					sink.Event(ev.Tag)
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

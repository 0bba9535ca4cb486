package ble

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/rs/zerolog/log"
)

// DefaultSubscriptionBuffer is the number of events queued for a slow subscriber before
// new ones are dropped.
const DefaultSubscriptionBuffer = 64

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

type subscription struct {
	mu     sync.Mutex
	closed bool
	ch     chan Event
}

func (s *subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// the BLE lib could send an advertisement even after `Scan()` returns.
	if s.closed {
		droppedAdvertisementsCounter.Inc()
		return
	}

	select {
	case s.ch <- ev:
	default:
		droppedAdvertisementsCounter.Inc()
		log.Trace().Stringer("Event", ev).Msg("ble: subscriber is busy, dropping advertisement")
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	close(s.ch)
}

// Subscribe starts scanning in the background and delivers every advertisement on the
// returned channel, in arrival order. The radio callback never blocks: events are dropped
// when the buffer is full. Cancelling ctx stops the scan and closes the channel.
func (h *Handle) Subscribe(ctx context.Context) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{
		ch: make(chan Event, DefaultSubscriptionBuffer),
	}

	allowDup := h.flags & FlagAllowDuplicates == FlagAllowDuplicates

	go func() {
		defer sub.close()

		err := h.dev.Scan(ctx, allowDup, func(a Advertisement) {
			receivedAdvertisementsCounter.Inc()

			ev := NewEvent(a)

			log.Trace().
				Str("Address", ev.Addr).
				Str("LocalName", ev.LocalName).
				Int("RSSI", ev.RSSI).
				Hex("ManufacturerData", a.ManufacturerData()).
				Msg("ble: received advertisement")

			sub.deliver(ev)
		})

		// swallow cancellations, which is how subscribers stop us.
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Error().Err(err).Msg("ble: scan terminated unexpectedly")
		}
	}()

	return sub.ch, nil
}

package _switch

import (
	"sync"

	"github.com/adwski/watch-party/backend/model"
	"github.com/rs/zerolog"
)

// Switch delivers announcements to connected endpoints.
// Delivery never blocks: an endpoint whose outbound queue is full
// is considered dead and the announcement is dropped for it.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]chan<- model.Announcement
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]chan<- model.Announcement),
	}
}

func (sw *Switch) Connect(endpoint string, wire model.Wire) {
	sw.mx.Lock()
	sw.fwd[endpoint] = wire.TX
	sw.mx.Unlock()

	sw.logger.Debug().
		Str("endpoint", endpoint).
		Msg("endpoint connected")
}

func (sw *Switch) Disconnect(endpoint string) {
	sw.mx.Lock()
	delete(sw.fwd, endpoint)
	sw.mx.Unlock()

	sw.logger.Debug().
		Str("endpoint", endpoint).
		Msg("endpoint disconnected")
}

// Send delivers ann to every endpoint in dst and returns
// how many of them actually got it.
func (sw *Switch) Send(ann model.Announcement, dst ...string) int {
	var sent int

	sw.mx.RLock()
	defer sw.mx.RUnlock()

	for _, endpoint := range dst {
		tx, ok := sw.fwd[endpoint]
		if !ok {
			sw.logger.Debug().
				Str("dst", endpoint).
				Str("type", ann.Type).
				Msg("cannot forward, dst not found")
			continue
		}
		ann.DST = endpoint
		if send(ann, tx, &sw.logger) {
			sent++
		}
	}
	if sent == 0 && len(dst) > 0 {
		sw.logger.Debug().
			Str("type", ann.Type).
			Msg("announcement did not reach anyone")
	}
	return sent
}

func send(ann model.Announcement, tx chan<- model.Announcement, logger *zerolog.Logger) bool {
	select {
	case tx <- ann:
		logger.Trace().Str("dst", ann.DST).Str("type", ann.Type).Msg("announce is forwarded")
		return true
	default:
		logger.Error().Str("dst", ann.DST).Str("type", ann.Type).Msg("dead endpoint, outbound queue is full")
		return false
	}
}

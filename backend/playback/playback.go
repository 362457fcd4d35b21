// Package playback implements authority rules and position extrapolation
// for a room's shared player.
//
// Hosts are never demoted explicitly. Authority only shrinks when a host
// leaves, and the registry hands it over to the oldest member if no host
// remains, so a room with members always has a reachable host.
package playback

import (
	"math"
	"time"

	"github.com/adwski/watch-party/backend/model"
)

// ReportState applies a host's playback report. The room is left
// untouched if the reporter is not a host.
func ReportState(room *model.Room, connID string, state model.PlaybackState, position float64, now time.Time) error {
	if !room.IsHost(connID) {
		return model.ErrNotHost
	}
	if !state.Valid() || math.IsNaN(position) || math.IsInf(position, 0) {
		return model.ErrInvalidPayload
	}
	room.State = state
	room.ReferencePosition = math.Max(0, position)
	room.ReferenceTime = now
	return nil
}

// CurrentPosition returns the position an observer should seek to at now.
// While playing the last reported position is advanced by the elapsed
// wall-clock time, negative elapsed time is treated as zero.
func CurrentPosition(room *model.Room, now time.Time) float64 {
	if room.State != model.StatePlaying {
		return room.ReferencePosition
	}
	elapsed := math.Max(0, now.Sub(room.ReferenceTime).Seconds())
	return math.Max(0, room.ReferencePosition+elapsed)
}

// Promote grants host authority to target. It reports whether target
// was already a host, in which case nothing changes.
func Promote(room *model.Room, requesterID, targetID string) (bool, error) {
	if !room.IsHost(requesterID) {
		return false, model.ErrNotHost
	}
	if !room.IsMember(targetID) {
		return false, model.ErrUnknownTarget
	}
	if room.IsHost(targetID) {
		return true, nil
	}
	room.Hosts[targetID] = struct{}{}
	return false, nil
}

package playback

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/adwski/watch-party/backend/model"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newRoom() *model.Room {
	return &model.Room{
		ID:             "ROOM01",
		MediaReference: "movie.mp4",
		Members: []model.Participant{
			{ID: "a", Name: "Alice"},
			{ID: "b", Name: "Bob"},
		},
		Hosts:         map[string]struct{}{"a": {}},
		State:         model.StatePaused,
		ReferenceTime: t0,
	}
}

func TestReportState(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		state    model.PlaybackState
		position float64
		wantErr  error
		wantPos  float64
		wantSt   model.PlaybackState
	}{
		{name: "host plays", sender: "a", state: model.StatePlaying, position: 10, wantPos: 10, wantSt: model.StatePlaying},
		{name: "host pauses", sender: "a", state: model.StatePaused, position: 42.5, wantPos: 42.5, wantSt: model.StatePaused},
		{name: "negative position clamped", sender: "a", state: model.StatePlaying, position: -3, wantPos: 0, wantSt: model.StatePlaying},
		{name: "follower rejected", sender: "b", state: model.StatePlaying, position: 10, wantErr: model.ErrNotHost, wantSt: model.StatePaused},
		{name: "stranger rejected", sender: "z", state: model.StatePlaying, position: 10, wantErr: model.ErrNotHost, wantSt: model.StatePaused},
		{name: "unknown state", sender: "a", state: "stopped", position: 10, wantErr: model.ErrInvalidPayload, wantSt: model.StatePaused},
		{name: "NaN position", sender: "a", state: model.StatePlaying, position: math.NaN(), wantErr: model.ErrInvalidPayload, wantSt: model.StatePaused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := newRoom()
			now := t0.Add(time.Minute)
			err := ReportState(room, tt.sender, tt.state, tt.position, now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReportState() error = %v, want %v", err, tt.wantErr)
			}
			if room.State != tt.wantSt {
				t.Errorf("state = %q, want %q", room.State, tt.wantSt)
			}
			if room.ReferencePosition != tt.wantPos {
				t.Errorf("position = %v, want %v", room.ReferencePosition, tt.wantPos)
			}
			if tt.wantErr != nil && !room.ReferenceTime.Equal(t0) {
				t.Errorf("reference time changed on rejected report")
			}
			if tt.wantErr == nil && !room.ReferenceTime.Equal(now) {
				t.Errorf("reference time = %v, want %v", room.ReferenceTime, now)
			}
		})
	}
}

func TestCurrentPosition(t *testing.T) {
	room := newRoom()
	start := t0.Add(100 * time.Second)
	if err := ReportState(room, "a", model.StatePlaying, 10, start); err != nil {
		t.Fatal(err)
	}

	t.Run("late joiner sees extrapolated position", func(t *testing.T) {
		got := CurrentPosition(room, start.Add(5*time.Second))
		if math.Abs(got-15) > 1e-9 {
			t.Errorf("CurrentPosition() = %v, want 15", got)
		}
	})

	t.Run("monotonic while playing", func(t *testing.T) {
		prev := CurrentPosition(room, start)
		for i := 1; i <= 50; i++ {
			cur := CurrentPosition(room, start.Add(time.Duration(i)*250*time.Millisecond))
			if cur < prev {
				t.Fatalf("position decreased: %v -> %v", prev, cur)
			}
			prev = cur
		}
	})

	t.Run("clock skew does not go backwards", func(t *testing.T) {
		got := CurrentPosition(room, start.Add(-time.Hour))
		if got != 10 {
			t.Errorf("CurrentPosition() = %v, want 10", got)
		}
	})

	t.Run("constant while paused", func(t *testing.T) {
		paused := newRoom()
		if err := ReportState(paused, "a", model.StatePaused, 33, start); err != nil {
			t.Fatal(err)
		}
		for _, d := range []time.Duration{0, time.Second, time.Hour, -time.Minute} {
			if got := CurrentPosition(paused, start.Add(d)); got != 33 {
				t.Errorf("CurrentPosition(+%v) = %v, want 33", d, got)
			}
		}
	})
}

func TestPromote(t *testing.T) {
	t.Run("host promotes member", func(t *testing.T) {
		room := newRoom()
		already, err := Promote(room, "a", "b")
		if err != nil {
			t.Fatalf("Promote() error = %v", err)
		}
		if already {
			t.Errorf("Promote() reported target as already host")
		}
		if !room.IsHost("b") || !room.IsHost("a") {
			t.Errorf("hosts = %v, want a and b", room.Hosts)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		room := newRoom()
		already, err := Promote(room, "a", "a")
		if err != nil || !already {
			t.Fatalf("Promote() = %v, %v, want true, nil", already, err)
		}
		if len(room.Hosts) != 1 {
			t.Errorf("hosts = %v", room.Hosts)
		}
	})

	t.Run("non-host rejected", func(t *testing.T) {
		room := newRoom()
		if _, err := Promote(room, "b", "b"); !errors.Is(err, model.ErrNotHost) {
			t.Fatalf("Promote() error = %v, want %v", err, model.ErrNotHost)
		}
		if room.IsHost("b") {
			t.Errorf("non-host was able to promote")
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		room := newRoom()
		if _, err := Promote(room, "a", "nobody"); !errors.Is(err, model.ErrUnknownTarget) {
			t.Fatalf("Promote() error = %v, want %v", err, model.ErrUnknownTarget)
		}
		if len(room.Hosts) != 1 {
			t.Errorf("hosts = %v", room.Hosts)
		}
	})
}

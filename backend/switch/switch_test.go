package _switch

import (
	"testing"

	"github.com/adwski/watch-party/backend/model"
	"github.com/rs/zerolog"
)

func TestSwitch_Send(t *testing.T) {
	logger := zerolog.Nop()
	sw := NewSwitch(&logger)

	a, b := model.NewWire(4), model.NewWire(1)
	sw.Connect("a", a)
	sw.Connect("b", b)

	ann := model.Announcement{Type: model.AnnouncementUserList}
	if n := sw.Send(ann, "a", "b", "ghost"); n != 2 {
		t.Fatalf("Send() = %d, want 2", n)
	}
	if got := <-a.TX; got.DST != "a" || got.Type != model.AnnouncementUserList {
		t.Errorf("a got %+v", got)
	}
	if got := <-b.TX; got.DST != "b" {
		t.Errorf("b got %+v", got)
	}

	t.Run("full queue drops without blocking", func(t *testing.T) {
		if n := sw.Send(ann, "b"); n != 1 {
			t.Fatalf("Send() = %d, want 1", n)
		}
		if n := sw.Send(ann, "b"); n != 0 {
			t.Fatalf("Send() to full queue = %d, want 0", n)
		}
		<-b.TX
	})

	t.Run("disconnected endpoint", func(t *testing.T) {
		sw.Disconnect("a")
		if n := sw.Send(ann, "a"); n != 0 {
			t.Fatalf("Send() = %d, want 0", n)
		}
		if len(a.TX) != 0 {
			t.Errorf("disconnected endpoint received an announcement")
		}
	})
}

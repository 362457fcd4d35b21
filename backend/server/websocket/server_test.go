package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adwski/watch-party/backend/metrics"
	"github.com/adwski/watch-party/backend/model"
	"github.com/adwski/watch-party/backend/service"
	store "github.com/adwski/watch-party/backend/storage/memory"
	sw "github.com/adwski/watch-party/backend/switch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(0),
		Switch:    sw.NewSwitch(&logger),
		Metrics:   metrics.New(),
		Logger:    &logger,
	})
	srv := NewServer(Config{
		Logger:           &logger,
		SignalingService: svc,
		ListenAddr:       "127.0.0.1:0",
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if err = conn.WriteJSON(frame{Type: typ, Payload: b}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn, wantType string, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if f.Type != wantType {
		t.Fatalf("got %q frame (%s), want %q", f.Type, f.Payload, wantType)
	}
	if v != nil {
		if err := json.Unmarshal(f.Payload, v); err != nil {
			t.Fatal(err)
		}
	}
}

func TestServer_WatchParty(t *testing.T) {
	ts := newTestServer(t)

	host := dial(t, ts)
	write(t, host, model.EventCreateRoom, model.CreateRoomPayload{HostName: "Alice", MediaReference: "movie.mp4"})
	var created model.RoomCreated
	read(t, host, model.AnnouncementRoomCreated, &created)
	read(t, host, model.AnnouncementYouAreHost, nil)
	if created.RoomID == "" || created.MediaReference != "movie.mp4" {
		t.Fatalf("created = %+v", created)
	}

	write(t, host, model.EventSyncState, model.SyncStatePayload{RoomID: created.RoomID, State: model.StatePlaying, Position: 30})
	// events of one connection are handled in order
	write(t, host, model.EventCheckRoom, model.RoomPayload{RoomID: created.RoomID})
	read(t, host, model.AnnouncementRoomStatus, nil)

	guest := dial(t, ts)
	write(t, guest, model.EventJoinRoom, model.JoinRoomPayload{RoomID: created.RoomID, UserName: "Bob"})
	var joined model.JoinedRoom
	read(t, guest, model.AnnouncementJoinedRoom, &joined)
	if joined.State != model.StatePlaying || joined.StartTime < 30 || joined.IsHost {
		t.Errorf("joined = %+v", joined)
	}
	read(t, guest, model.AnnouncementUserList, nil)
	read(t, host, model.AnnouncementUserList, nil)

	write(t, guest, model.EventSyncState, model.SyncStatePayload{RoomID: created.RoomID, State: model.StatePaused, Position: 0})
	var rejection model.Error
	read(t, guest, model.AnnouncementError, &rejection)
	if rejection.Code != service.CodeNotHost {
		t.Errorf("rejection = %+v", rejection)
	}

	write(t, host, model.EventSyncState, model.SyncStatePayload{RoomID: created.RoomID, State: model.StatePaused, Position: 31})
	var upd model.VideoUpdate
	read(t, guest, model.AnnouncementVideoUpdate, &upd)
	if upd.State != model.StatePaused || upd.Position != 31 {
		t.Errorf("update = %+v", upd)
	}

	// host goes away, guest takes over
	_ = host.Close()
	read(t, guest, model.AnnouncementYouAreHost, nil)
	var users model.UserList
	read(t, guest, model.AnnouncementUserList, &users)
	if len(users.Users) != 1 || !users.Users[0].IsHost || users.Users[0].Name != "Bob" {
		t.Errorf("users = %+v", users)
	}
}

func TestServer_JoinUnknownRoom(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts)

	write(t, conn, model.EventJoinRoom, model.JoinRoomPayload{RoomID: "NOPE", UserName: "Bob"})
	var e model.Error
	read(t, conn, model.AnnouncementError, &e)
	if e.Code != service.CodeNotFound || e.Request != model.EventJoinRoom {
		t.Errorf("error = %+v", e)
	}
}

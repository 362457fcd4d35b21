package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adwski/watch-party/backend/metrics"
	"github.com/adwski/watch-party/backend/model"
	"github.com/adwski/watch-party/backend/playback"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

const (
	maxRoomIDLength = 64
)

// Wire error codes.
const (
	CodeNotFound       = "not_found"
	CodeNotHost        = "not_host"
	CodeUnknownTarget  = "unknown_target"
	CodeDuplicateRoom  = "duplicate_room"
	CodeAlreadyInRoom  = "already_in_room"
	CodeNotAMember     = "not_a_member"
	CodeInvalidPayload = "invalid_payload"
	CodeUnknownEvent   = "unknown_event"
	CodeInternal       = "internal"
)

type (
	RoomStore interface {
		Create(roomID, mediaReference string, creator model.Participant, now time.Time) (*model.Room, error)
		Lookup(roomID string) (*model.Room, error)
		RoomOf(connID string) (*model.Room, bool)
		AddMember(roomID string, p model.Participant) (*model.Room, error)
		RemoveMember(roomID, connID string) (*model.Departure, error)
		Destroy(roomID string) ([]model.Participant, error)
		Stats() (rooms, participants int)
	}

	Switch interface {
		Connect(endpoint string, wire model.Wire)
		Disconnect(endpoint string)
		Send(ann model.Announcement, dst ...string) int
	}

	Metrics interface {
		IncEvent(event string)
		IncRejection(code string)
		IncHostPromotion(reason string)
		SetOccupancy(rooms, participants int)
	}

	// Service dispatches inbound events against the room store.
	// Handlers run one at a time, announcements are queued to the
	// switch before the next handler starts so per-room order holds.
	Service struct {
		mx      sync.Mutex
		store   RoomStore
		sw      Switch
		metrics Metrics
		clock   func() time.Time
		logger  zerolog.Logger
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Metrics   Metrics
		Logger    *zerolog.Logger
		// Clock defaults to time.Now.
		Clock func() time.Time
	}
)

func NewService(cfg Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:   cfg.RoomStore,
		sw:      cfg.Switch,
		metrics: cfg.Metrics,
		clock:   clock,
		logger:  cfg.Logger.With().Str("component", "service").Logger(),
	}
}

func (svc *Service) CreateSignalingSession(_ context.Context, connID string, wire model.Wire) error {
	if connID == "" {
		return errors.New("empty connection id")
	}
	svc.sw.Connect(connID, wire)
	svc.logger.Debug().
		Str("connID", connID).
		Msg("signaling session connected")
	return nil
}

// Dispatch feeds events from rx into the serialized handler path
// until ctx is done.
func (svc *Service) Dispatch(ctx context.Context, connID string, rx <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-rx:
			ev.SRC = connID
			svc.Handle(ev)
		}
	}
}

// DeleteSignalingSession handles disconnect of the connection.
// It must be called after Dispatch for the same connection has returned.
func (svc *Service) DeleteSignalingSession(_ context.Context, connID string) error {
	svc.Handle(model.Event{SRC: connID, Type: model.EventDisconnect})
	svc.sw.Disconnect(connID)
	svc.logger.Debug().
		Str("connID", connID).
		Msg("signaling session deleted")
	return nil
}

// RoomInfo returns a snapshot of the room with extrapolated position.
func (svc *Service) RoomInfo(roomID string) (*model.RoomInfo, error) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	room, err := svc.store.Lookup(roomID)
	if err != nil {
		return nil, err
	}
	return &model.RoomInfo{
		RoomID:   room.ID,
		Members:  len(room.Members),
		State:    room.State,
		Position: playback.CurrentPosition(room, svc.clock()),
	}, nil
}

// Handle processes one inbound event. Rejections are reported to the
// sender only and never change room state.
func (svc *Service) Handle(ev model.Event) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	logger := svc.logger.With().
		Str("connID", ev.SRC).
		Str("event", ev.Type).
		Logger()

	var err error
	switch ev.Type {
	case model.EventCreateRoom:
		err = svc.createRoom(ev, &logger)
	case model.EventJoinRoom:
		err = svc.joinRoom(ev, &logger)
	case model.EventSyncState:
		err = svc.syncState(ev)
	case model.EventPromoteHost:
		err = svc.promoteHost(ev, &logger)
	case model.EventEndParty:
		err = svc.endParty(ev, &logger)
	case model.EventLeaveRoom:
		err = svc.leaveRoom(ev, &logger)
	case model.EventCheckRoom:
		err = svc.checkRoom(ev)
	case model.EventRequestSync:
		err = svc.requestSync(ev)
	case model.EventDisconnect:
		svc.leaveCurrentRoom(ev.SRC, &logger)
	default:
		err = fmt.Errorf("%w: %q", model.ErrUnknownEvent, ev.Type)
	}
	if errors.Is(err, model.ErrUnknownEvent) {
		svc.metrics.IncEvent("unknown")
	} else {
		svc.metrics.IncEvent(ev.Type)
	}

	if err != nil {
		code := errorCode(err)
		svc.metrics.IncRejection(code)
		logger.Debug().Err(err).Str("code", code).Msg("event rejected")
		svc.sw.Send(model.Announcement{
			Type: model.AnnouncementError,
			Payload: model.Error{
				Code:    code,
				Message: err.Error(),
				Request: ev.Type,
			},
		}, ev.SRC)
	}

	svc.metrics.SetOccupancy(svc.store.Stats())
	if room, ok := svc.store.RoomOf(ev.SRC); ok {
		if e := logger.Trace(); e.Enabled() {
			e.Str("room", spew.Sdump(room)).Msg("room state after event")
		}
	}
}

func (svc *Service) createRoom(ev model.Event, logger *zerolog.Logger) error {
	var p model.CreateRoomPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	var (
		roomID = strings.TrimSpace(p.RoomID)
		name   = strings.TrimSpace(p.HostName)
		media  = strings.TrimSpace(p.MediaReference)
	)
	switch {
	case name == "":
		return fmt.Errorf("%w: hostName is required", model.ErrInvalidPayload)
	case media == "":
		return fmt.Errorf("%w: mediaReference is required", model.ErrInvalidPayload)
	case len(roomID) > maxRoomIDLength:
		return fmt.Errorf("%w: roomId is longer than %d", model.ErrInvalidPayload, maxRoomIDLength)
	}
	if roomID != "" {
		if _, err := svc.store.Lookup(roomID); err == nil {
			return model.ErrDuplicateRoom
		}
	}

	svc.leaveCurrentRoom(ev.SRC, logger)

	room, err := svc.store.Create(roomID, media, model.Participant{ID: ev.SRC, Name: name}, svc.clock())
	if err != nil {
		return err
	}
	svc.sw.Send(model.Announcement{
		Type: model.AnnouncementRoomCreated,
		Payload: model.RoomCreated{
			RoomID:         room.ID,
			MediaReference: room.MediaReference,
			Users:          room.UserList(),
		},
	}, ev.SRC)
	svc.sw.Send(model.Announcement{
		Type:    model.AnnouncementYouAreHost,
		Payload: model.RoomPayload{RoomID: room.ID},
	}, ev.SRC)

	logger.Info().Str("roomID", room.ID).Msg("room created")
	return nil
}

func (svc *Service) joinRoom(ev model.Event, logger *zerolog.Logger) error {
	var p model.JoinRoomPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	var (
		roomID = strings.TrimSpace(p.RoomID)
		name   = strings.TrimSpace(p.UserName)
	)
	switch {
	case roomID == "":
		return fmt.Errorf("%w: roomId is required", model.ErrInvalidPayload)
	case name == "":
		return fmt.Errorf("%w: userName is required", model.ErrInvalidPayload)
	}
	room, err := svc.store.Lookup(roomID)
	if err != nil {
		return err
	}
	if room.IsMember(ev.SRC) {
		return model.ErrAlreadyInRoom
	}

	svc.leaveCurrentRoom(ev.SRC, logger)

	if room, err = svc.store.AddMember(roomID, model.Participant{ID: ev.SRC, Name: name}); err != nil {
		return err
	}
	svc.sw.Send(model.Announcement{
		Type: model.AnnouncementJoinedRoom,
		Payload: model.JoinedRoom{
			RoomID:         room.ID,
			MediaReference: room.MediaReference,
			StartTime:      playback.CurrentPosition(room, svc.clock()),
			State:          room.State,
			IsHost:         room.IsHost(ev.SRC),
		},
	}, ev.SRC)
	svc.sendUserList(room)

	logger.Debug().Str("roomID", room.ID).Msg("user joined room")
	return nil
}

func (svc *Service) syncState(ev model.Event) error {
	var p model.SyncStatePayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	room, err := svc.store.Lookup(p.RoomID)
	if err != nil {
		return err
	}
	if err = playback.ReportState(room, ev.SRC, p.State, p.Position, svc.clock()); err != nil {
		return err
	}
	svc.sw.Send(model.Announcement{
		Type: model.AnnouncementVideoUpdate,
		Payload: model.VideoUpdate{
			State:    room.State,
			Position: room.ReferencePosition,
		},
	}, room.MemberIDs(ev.SRC)...)
	return nil
}

func (svc *Service) promoteHost(ev model.Event, logger *zerolog.Logger) error {
	var p model.PromoteHostPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	room, err := svc.store.Lookup(p.RoomID)
	if err != nil {
		return err
	}
	already, err := playback.Promote(room, ev.SRC, p.TargetID)
	if err != nil {
		return err
	}
	if !already {
		svc.metrics.IncHostPromotion(metrics.PromotionExplicit)
		logger.Debug().
			Str("roomID", room.ID).
			Str("target", p.TargetID).
			Msg("host promoted")
	}
	svc.sw.Send(model.Announcement{
		Type:    model.AnnouncementYouAreHost,
		Payload: model.RoomPayload{RoomID: room.ID},
	}, p.TargetID)
	svc.sendUserList(room)
	return nil
}

func (svc *Service) endParty(ev model.Event, logger *zerolog.Logger) error {
	var p model.RoomPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	room, err := svc.store.Lookup(p.RoomID)
	if err != nil {
		return err
	}
	if !room.IsHost(ev.SRC) {
		return model.ErrNotHost
	}
	members, err := svc.store.Destroy(room.ID)
	if err != nil {
		return err
	}
	dst := make([]string, 0, len(members))
	for _, m := range members {
		dst = append(dst, m.ID)
	}
	svc.sw.Send(model.Announcement{
		Type:    model.AnnouncementPartyEnded,
		Payload: model.RoomPayload{RoomID: room.ID},
	}, dst...)

	logger.Info().Str("roomID", room.ID).Msg("party ended by host")
	return nil
}

func (svc *Service) leaveRoom(ev model.Event, logger *zerolog.Logger) error {
	var p model.RoomPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	room, err := svc.store.Lookup(p.RoomID)
	if err != nil {
		return err
	}
	if !room.IsMember(ev.SRC) {
		return model.ErrNotAMember
	}
	if err = svc.removeMember(room.ID, ev.SRC, logger); err != nil {
		return err
	}
	svc.sw.Send(model.Announcement{
		Type:    model.AnnouncementLeftRoom,
		Payload: model.RoomPayload{RoomID: p.RoomID},
	}, ev.SRC)
	return nil
}

func (svc *Service) checkRoom(ev model.Event) error {
	var p model.RoomPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	_, err := svc.store.Lookup(p.RoomID)
	svc.sw.Send(model.Announcement{
		Type: model.AnnouncementRoomStatus,
		Payload: model.RoomStatus{
			RoomID: p.RoomID,
			Exists: err == nil,
		},
	}, ev.SRC)
	return nil
}

func (svc *Service) requestSync(ev model.Event) error {
	var p model.RoomPayload
	if err := decode(ev, &p); err != nil {
		return err
	}
	room, err := svc.store.Lookup(p.RoomID)
	if err != nil {
		return err
	}
	if !room.IsMember(ev.SRC) {
		return model.ErrNotAMember
	}
	svc.sw.Send(model.Announcement{
		Type: model.AnnouncementVideoUpdate,
		Payload: model.VideoUpdate{
			State:    room.State,
			Position: playback.CurrentPosition(room, svc.clock()),
		},
	}, ev.SRC)
	return nil
}

func (svc *Service) leaveCurrentRoom(connID string, logger *zerolog.Logger) {
	room, ok := svc.store.RoomOf(connID)
	if !ok {
		return
	}
	if err := svc.removeMember(room.ID, connID, logger); err != nil {
		logger.Error().Err(err).Str("roomID", room.ID).Msg("failed to leave room")
	}
}

func (svc *Service) removeMember(roomID, connID string, logger *zerolog.Logger) error {
	dep, err := svc.store.RemoveMember(roomID, connID)
	if err != nil {
		return err
	}
	if dep.Deleted {
		logger.Info().Str("roomID", roomID).Msg("last member left, room deleted")
		return nil
	}
	if dep.NewHost != "" {
		svc.metrics.IncHostPromotion(metrics.PromotionHandover)
		logger.Debug().
			Str("roomID", roomID).
			Str("newHost", dep.NewHost).
			Msg("host authority handed over")
		svc.sw.Send(model.Announcement{
			Type:    model.AnnouncementYouAreHost,
			Payload: model.RoomPayload{RoomID: roomID},
		}, dep.NewHost)
	}
	svc.sendUserList(dep.Room)
	logger.Debug().Str("roomID", roomID).Msg("user left room")
	return nil
}

func (svc *Service) sendUserList(room *model.Room) {
	svc.sw.Send(model.Announcement{
		Type: model.AnnouncementUserList,
		Payload: model.UserList{
			RoomID: room.ID,
			Users:  room.UserList(),
		},
	}, room.MemberIDs()...)
}

func decode(ev model.Event, v any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", model.ErrInvalidPayload)
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidPayload, err)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		return CodeNotFound
	case errors.Is(err, model.ErrNotHost):
		return CodeNotHost
	case errors.Is(err, model.ErrUnknownTarget):
		return CodeUnknownTarget
	case errors.Is(err, model.ErrDuplicateRoom):
		return CodeDuplicateRoom
	case errors.Is(err, model.ErrAlreadyInRoom):
		return CodeAlreadyInRoom
	case errors.Is(err, model.ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, model.ErrInvalidPayload):
		return CodeInvalidPayload
	case errors.Is(err, model.ErrUnknownEvent):
		return CodeUnknownEvent
	default:
		return CodeInternal
	}
}

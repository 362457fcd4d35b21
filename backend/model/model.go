package model

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrRoomNotFound   = errors.New("room is not found")
	ErrDuplicateRoom  = errors.New("room already exists")
	ErrNotHost        = errors.New("requester is not a host of this room")
	ErrUnknownTarget  = errors.New("target is not a member of this room")
	ErrAlreadyInRoom  = errors.New("connection already belongs to a room")
	ErrNotAMember     = errors.New("connection is not a member of this room")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownEvent   = errors.New("unknown event type")
)

type PlaybackState string

const (
	StatePaused  PlaybackState = "paused"
	StatePlaying PlaybackState = "playing"
)

func (s PlaybackState) Valid() bool {
	return s == StatePaused || s == StatePlaying
}

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Room is the authoritative state of one watch party.
// Members keep insertion order, the earliest member is the default handover target.
type Room struct {
	ID             string
	MediaReference string
	Members        []Participant
	Hosts          map[string]struct{}

	State             PlaybackState
	ReferencePosition float64
	ReferenceTime     time.Time
}

func (r *Room) IsHost(connID string) bool {
	_, ok := r.Hosts[connID]
	return ok
}

func (r *Room) IsMember(connID string) bool {
	return r.memberIndex(connID) >= 0
}

func (r *Room) memberIndex(connID string) int {
	for i, m := range r.Members {
		if m.ID == connID {
			return i
		}
	}
	return -1
}

// MemberIDs returns connection ids of all members in insertion order,
// skipping the ones listed in exclude.
func (r *Room) MemberIDs(exclude ...string) []string {
	ids := make([]string, 0, len(r.Members))
MembersLoop:
	for _, m := range r.Members {
		for _, ex := range exclude {
			if m.ID == ex {
				continue MembersLoop
			}
		}
		ids = append(ids, m.ID)
	}
	return ids
}

func (r *Room) UserList() []User {
	users := make([]User, 0, len(r.Members))
	for _, m := range r.Members {
		users = append(users, User{
			ID:     m.ID,
			Name:   m.Name,
			IsHost: r.IsHost(m.ID),
		})
	}
	return users
}

// Departure describes what happened to a room after a member was removed.
type Departure struct {
	RoomID string
	// Room is nil if the room was deleted because nobody was left.
	Room    *Room
	Deleted bool
	// NewHost is set when the leaving member was the last host
	// and authority was handed over to the oldest remaining member.
	NewHost string
}

type RoomInfo struct {
	RoomID   string        `json:"roomId"`
	Members  int           `json:"members"`
	State    PlaybackState `json:"state"`
	Position float64       `json:"position"`
}

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

// Inbound event types.
const (
	EventCreateRoom  = "create_room"
	EventJoinRoom    = "join_room"
	EventSyncState   = "sync_state"
	EventPromoteHost = "promote_host"
	EventEndParty    = "end_party"
	EventLeaveRoom   = "leave_room"
	EventCheckRoom   = "check_room"
	EventRequestSync = "request_sync"
	EventDisconnect  = "disconnect"
)

// Outbound announcement types.
const (
	AnnouncementRoomCreated = "room_created"
	AnnouncementYouAreHost  = "you_are_host"
	AnnouncementJoinedRoom  = "joined_room"
	AnnouncementUserList    = "user_list"
	AnnouncementVideoUpdate = "video_update"
	AnnouncementPartyEnded  = "party_ended"
	AnnouncementLeftRoom    = "left_room"
	AnnouncementRoomStatus  = "room_status"
	AnnouncementError       = "error"
)

// Event is an inbound message. SRC is assigned by the transport
// from the websocket session, never taken from the client.
type Event struct {
	SRC     string          `json:"-"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Announcement is an outbound message delivered to DST.
type Announcement struct {
	DST     string `json:"-"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type (
	CreateRoomPayload struct {
		RoomID         string `json:"roomId,omitempty"`
		HostName       string `json:"hostName"`
		MediaReference string `json:"mediaReference"`
	}

	JoinRoomPayload struct {
		RoomID   string `json:"roomId"`
		UserName string `json:"userName"`
	}

	SyncStatePayload struct {
		RoomID   string        `json:"roomId"`
		State    PlaybackState `json:"state"`
		Position float64       `json:"position"`
	}

	PromoteHostPayload struct {
		RoomID   string `json:"roomId"`
		TargetID string `json:"targetId"`
	}

	RoomPayload struct {
		RoomID string `json:"roomId"`
	}
)

type (
	RoomCreated struct {
		RoomID         string `json:"roomId"`
		MediaReference string `json:"mediaReference"`
		Users          []User `json:"users"`
	}

	JoinedRoom struct {
		RoomID         string        `json:"roomId"`
		MediaReference string        `json:"mediaReference"`
		StartTime      float64       `json:"startTime"`
		State          PlaybackState `json:"state"`
		IsHost         bool          `json:"isHost"`
	}

	UserList struct {
		RoomID string `json:"roomId"`
		Users  []User `json:"users"`
	}

	VideoUpdate struct {
		State    PlaybackState `json:"state"`
		Position float64       `json:"position"`
	}

	RoomStatus struct {
		RoomID string `json:"roomId"`
		Exists bool   `json:"exists"`
	}

	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Request string `json:"request,omitempty"`
	}
)

// Wire connects a transport session with the service.
type Wire struct {
	RX chan Event
	TX chan Announcement
}

func NewWire(txBuffer int) Wire {
	return Wire{
		RX: make(chan Event),
		TX: make(chan Announcement, txBuffer),
	}
}

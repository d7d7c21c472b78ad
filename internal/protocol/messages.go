// Package protocol defines the wire envelope and payloads exchanged
// with the coordination server.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/convoy/internal/domain"
)

// Client -> server.
const (
	TypeCreateRoom     = "CREATE_ROOM"
	TypeJoinRoom       = "JOIN_ROOM"
	TypeUpdateLocation = "UPDATE_LOCATION"
	TypeUpdateRoute    = "UPDATE_ROUTE"
	TypeLeaveRoom      = "LEAVE_ROOM"
	TypeTerminateRoom  = "TERMINATE_ROOM"
	TypeGetRoomDetails = "GET_ROOM_DETAILS"
)

// Server -> client.
const (
	TypeRoomCreated    = "ROOM_CREATED"
	TypeCreatedRoom    = "CREATED_ROOM" // older servers emit this alias
	TypeJoinSuccess    = "JOIN_SUCCESS"
	TypeUserIDAssigned = "USER_ID_ASSIGNED"
	TypeRoomDetails    = "ROOM_DETAILS"
	TypeUpdatedRoom    = "UPDATED_ROOM"
	TypeJoinedRoom     = "JOINED_ROOM"
	TypeDisconnectRoom = "DISCONNECT_ROOM"
	TypeError          = "ERROR"
)

// Envelope is the frame shape on the wire: {type, payload}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode builds a wire frame from a type and its payload.
func Encode(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// Decode parses a wire frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

type CreateRoomPayload struct {
	Name        string            `json:"name"`
	Location    domain.Coordinate `json:"location"`
	Destination domain.Coordinate `json:"destination"`
	PlaceID     string            `json:"placeId,omitempty"`
}

type JoinRoomPayload struct {
	RoomID   domain.RoomID     `json:"roomId"`
	Name     string            `json:"name"`
	Location domain.Coordinate `json:"location"`
}

type RoomCreatedPayload struct {
	RoomID      domain.RoomID                 `json:"roomId"`
	UserID      domain.UserID                 `json:"userId"`
	Users       map[domain.UserID]domain.User `json:"users,omitempty"`
	Destination *domain.Coordinate            `json:"destination,omitempty"`
}

type JoinSuccessPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

type UserIDAssignedPayload struct {
	UserID domain.UserID `json:"userId"`
}

type UpdateLocationPayload struct {
	UserID   domain.UserID     `json:"userId"`
	Location domain.Coordinate `json:"location"`
}

type UpdateRoutePayload struct {
	UserID domain.UserID `json:"userId"`
	RoomID domain.RoomID `json:"roomId"`
	Route  domain.Route  `json:"route"`
}

type LeaveRoomPayload struct {
	UserID domain.UserID `json:"userId"`
	RoomID domain.RoomID `json:"roomId"`
}

type GetRoomDetailsPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

type RoomDetailsPayload struct {
	RoomID      domain.RoomID                 `json:"roomId"`
	Users       map[domain.UserID]domain.User `json:"users,omitempty"`
	Destination *domain.Coordinate            `json:"destination,omitempty"`
	CreatedBy   domain.UserID                 `json:"createdBy,omitempty"`
	CreatedAt   int64                         `json:"createdAt,omitempty"`
}

type RoomUsersPayload struct {
	Users map[domain.UserID]domain.User `json:"users"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

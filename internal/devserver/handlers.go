package devserver

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/convoy/internal/domain"
	"github.com/dkeye/convoy/internal/protocol"
)

func (s *Server) handleFrame(c *client, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCreateRoom:
		s.handleCreateRoom(c, env.Payload)
	case protocol.TypeJoinRoom:
		s.handleJoinRoom(c, env.Payload)
	case protocol.TypeUpdateLocation:
		s.handleUpdateLocation(c, env.Payload)
	case protocol.TypeUpdateRoute:
		s.handleUpdateRoute(c, env.Payload)
	case protocol.TypeLeaveRoom:
		s.handleLeaveRoom(c)
	case protocol.TypeTerminateRoom:
		s.handleTerminateRoom(c)
	case protocol.TypeGetRoomDetails:
		s.handleGetRoomDetails(c, env.Payload)
	default:
		log.Warn().Str("module", "devserver").Str("type", env.Type).Msg("unknown message")
	}
}

func (s *Server) sendTo(c *client, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Str("type", msgType).Msg("encode")
		return
	}
	_ = c.trySend(data)
}

func (s *Server) sendError(c *client, msg string) {
	s.sendTo(c, protocol.TypeError, protocol.ErrorPayload{Message: msg})
}

// broadcast sends to every member of the room; except filters one user
// out when non-empty.
func (s *Server) broadcast(st *roomState, except domain.UserID, msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return
	}
	for uid, member := range st.members {
		if except != "" && uid == except {
			continue
		}
		_ = member.trySend(data)
	}
}

func (s *Server) handleCreateRoom(c *client, payload []byte) {
	var p protocol.CreateRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(c, "bad payload")
		return
	}
	user, err := domain.NewUser(domain.UserID(uuid.NewString()), p.Name)
	if err != nil {
		s.sendError(c, err.Error())
		return
	}
	now := time.Now().Unix()
	loc := p.Location
	user.Location = &loc
	user.JoinedAt = now

	dest := p.Destination
	room := &domain.Room{
		ID:          domain.RoomID(uuid.NewString()),
		Users:       map[domain.UserID]domain.User{user.ID: *user},
		Destination: &dest,
		CreatedBy:   user.ID,
		CreatedAt:   now,
	}

	s.mu.Lock()
	s.rooms[room.ID] = &roomState{
		room:    room,
		members: map[domain.UserID]*client{user.ID: c},
	}
	s.mu.Unlock()
	c.bind(room.ID, user.ID)

	log.Info().Str("module", "devserver").Str("room", string(room.ID)).Str("user", string(user.ID)).Msg("room created")
	s.sendTo(c, protocol.TypeRoomCreated, protocol.RoomCreatedPayload{
		RoomID:      room.ID,
		UserID:      user.ID,
		Users:       room.Users,
		Destination: room.Destination,
	})
}

func (s *Server) handleJoinRoom(c *client, payload []byte) {
	var p protocol.JoinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(c, "bad payload")
		return
	}

	s.mu.Lock()
	st, ok := s.rooms[p.RoomID]
	if !ok {
		s.mu.Unlock()
		log.Warn().Str("module", "devserver").Str("room", string(p.RoomID)).Msg("join to unknown room")
		s.sendError(c, "room does not exist")
		return
	}
	user, err := domain.NewUser(domain.UserID(uuid.NewString()), p.Name)
	if err != nil {
		s.mu.Unlock()
		s.sendError(c, err.Error())
		return
	}
	loc := p.Location
	user.Location = &loc
	user.JoinedAt = time.Now().Unix()
	st.room.Users[user.ID] = *user
	st.members[user.ID] = c
	users := cloneUsers(st.room.Users)
	dest := st.room.Destination
	s.mu.Unlock()
	c.bind(p.RoomID, user.ID)

	// The two identity messages are independent; order is configurable
	// so client handling of both arrivals stays honest.
	if s.opts.IdentityFirst {
		s.sendTo(c, protocol.TypeUserIDAssigned, protocol.UserIDAssignedPayload{UserID: user.ID})
		s.sendTo(c, protocol.TypeJoinSuccess, protocol.JoinSuccessPayload{RoomID: p.RoomID})
	} else {
		s.sendTo(c, protocol.TypeJoinSuccess, protocol.JoinSuccessPayload{RoomID: p.RoomID})
		s.sendTo(c, protocol.TypeUserIDAssigned, protocol.UserIDAssignedPayload{UserID: user.ID})
	}

	s.mu.Lock()
	st, ok = s.rooms[p.RoomID]
	if ok {
		s.broadcast(st, "", protocol.TypeJoinedRoom, struct {
			RoomID      domain.RoomID                 `json:"roomId"`
			Users       map[domain.UserID]domain.User `json:"users"`
			Destination *domain.Coordinate            `json:"destination,omitempty"`
		}{p.RoomID, users, dest})
	}
	s.mu.Unlock()
	log.Info().Str("module", "devserver").Str("room", string(p.RoomID)).Str("user", string(user.ID)).Msg("joined")
}

func (s *Server) handleUpdateLocation(c *client, payload []byte) {
	var p protocol.UpdateLocationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(c, "bad payload")
		return
	}
	roomID, _ := c.identity()
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return
	}
	user, ok := st.room.Users[p.UserID]
	if !ok {
		return
	}
	loc := p.Location
	user.Location = &loc
	user.UpdatedAt = time.Now().Unix()
	st.room.Users[p.UserID] = user
	s.broadcast(st, "", protocol.TypeUpdatedRoom, protocol.RoomUsersPayload{Users: cloneUsers(st.room.Users)})
}

func (s *Server) handleUpdateRoute(c *client, payload []byte) {
	var p protocol.UpdateRoutePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(c, "bad payload")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[p.RoomID]
	if !ok {
		return
	}
	user, ok := st.room.Users[p.UserID]
	if !ok {
		return
	}
	route := p.Route
	user.Route = &route
	user.UpdatedAt = time.Now().Unix()
	st.room.Users[p.UserID] = user
	s.broadcast(st, "", protocol.TypeUpdatedRoom, protocol.RoomUsersPayload{Users: cloneUsers(st.room.Users)})
}

func (s *Server) handleLeaveRoom(c *client) {
	roomID, userID := c.identity()
	c.unbind()
	s.removeMember(roomID, userID)
}

func (s *Server) removeMember(roomID domain.RoomID, userID domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(st.room.Users, userID)
	delete(st.members, userID)
	if len(st.members) == 0 {
		delete(s.rooms, roomID)
		return
	}
	s.broadcast(st, "", protocol.TypeDisconnectRoom, protocol.RoomUsersPayload{Users: cloneUsers(st.room.Users)})
}

func (s *Server) handleTerminateRoom(c *client) {
	roomID, _ := c.identity()
	c.unbind()
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(s.rooms, roomID)
	s.broadcast(st, "", protocol.TypeDisconnectRoom, protocol.RoomUsersPayload{Users: map[domain.UserID]domain.User{}})
	for _, member := range st.members {
		member.unbind()
	}
	log.Info().Str("module", "devserver").Str("room", string(roomID)).Msg("room terminated")
}

func (s *Server) handleGetRoomDetails(c *client, payload []byte) {
	var p protocol.GetRoomDetailsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError(c, "bad payload")
		return
	}
	s.mu.Lock()
	st, ok := s.rooms[p.RoomID]
	if !ok {
		s.mu.Unlock()
		s.sendError(c, "room does not exist")
		return
	}
	reply := protocol.RoomDetailsPayload{
		RoomID:      st.room.ID,
		Users:       cloneUsers(st.room.Users),
		Destination: st.room.Destination,
		CreatedBy:   st.room.CreatedBy,
		CreatedAt:   st.room.CreatedAt,
	}
	s.mu.Unlock()
	s.sendTo(c, protocol.TypeRoomDetails, reply)
}

func cloneUsers(users map[domain.UserID]domain.User) map[domain.UserID]domain.User {
	out := make(map[domain.UserID]domain.User, len(users))
	for id, u := range users {
		out[id] = u
	}
	return out
}

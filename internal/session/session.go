// Package session implements the client side of the room protocol: the
// lifecycle state machine, the message router, the location publisher
// and the request/reply bridge.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/dkeye/convoy/internal/core"
	"github.com/dkeye/convoy/internal/domain"
	"github.com/dkeye/convoy/internal/protocol"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingRoom
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateAwaitingRoom:
		return "awaiting_room"
	case StateJoined:
		return "joined"
	default:
		return "idle"
	}
}

const (
	detailsCacheSize = 32
	defaultTimeout   = 5 * time.Second
)

// Options tune a Session. Zero values fall back to defaults.
type Options struct {
	RequestTimeout  time.Duration // room-details round-trip bound
	PublishInterval time.Duration // location publisher tick
	DetailsCacheTTL time.Duration // cache of non-current room lookups
}

// Session is the room session state machine. One instance per process
// lifetime of a connection; it is the only writer of the room snapshot.
// Consumers receive it by reference, there is no package-level instance.
type Session struct {
	transport core.SignalTransport
	router    *Router
	publisher *Publisher
	timeout   time.Duration
	details   *expirable.LRU[domain.RoomID, *domain.Room]

	mu       sync.Mutex
	state    State
	roomID   domain.RoomID
	userID   domain.UserID
	snapshot *domain.Room
	// join sub-state: JOIN_SUCCESS and USER_ID_ASSIGNED arrive
	// independently and in either order; the join completes only once
	// both pieces are present.
	joinRoomID domain.RoomID
	joinUserID domain.UserID

	onJoined     func(domain.RoomID, domain.UserID)
	onRoomUpdate func(*domain.Room)
	onError      func(error)
}

// New wires a session onto a transport and router. The session keeps
// its reply handlers registered for its whole lifetime and observes
// transport closes to release per-session state.
func New(t core.SignalTransport, r *Router, geo core.GeoProvider, opts Options) *Session {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultTimeout
	}
	if opts.DetailsCacheTTL <= 0 {
		opts.DetailsCacheTTL = time.Minute
	}
	s := &Session{
		transport: t,
		router:    r,
		timeout:   opts.RequestTimeout,
		details:   expirable.NewLRU[domain.RoomID, *domain.Room](detailsCacheSize, nil, opts.DetailsCacheTTL),
	}
	s.publisher = NewPublisher(geo, s.publishPosition, opts.PublishInterval)

	r.SetFold(s.fold)
	r.OnMessage(protocol.TypeRoomCreated, s.handleRoomCreated)
	r.OnMessage(protocol.TypeCreatedRoom, s.handleRoomCreated)
	r.OnMessage(protocol.TypeJoinSuccess, s.handleJoinSuccess)
	r.OnMessage(protocol.TypeUserIDAssigned, s.handleUserIDAssigned)
	r.OnMessage(protocol.TypeError, s.handleError)
	t.OnClose(s.handleDisconnected)
	return s
}

// OnJoined replaces the join observer, fired once identity is fully
// assigned after a create or join.
func (s *Session) OnJoined(fn func(domain.RoomID, domain.UserID)) {
	s.mu.Lock()
	s.onJoined = fn
	s.mu.Unlock()
}

// OnRoomUpdate replaces the snapshot observer, fired after each fold.
func (s *Session) OnRoomUpdate(fn func(*domain.Room)) {
	s.mu.Lock()
	s.onRoomUpdate = fn
	s.mu.Unlock()
}

// OnError replaces the observer for server-sent ERROR messages. With no
// observer set they are logged and dropped.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomAndUserIDs returns the session identity. Either value is empty
// until the corresponding server reply assigned it.
func (s *Session) RoomAndUserIDs() (domain.RoomID, domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.userID
}

// Snapshot returns a copy of the cached room state, nil before the
// first room-shaped payload of the current session.
func (s *Session) Snapshot() *domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// CreateRoom requests a new room. Completion is event-driven: the
// OnJoined observer fires when the server assigns identity, OnError on
// rejection. Requires an open connection.
func (s *Session) CreateRoom(name string, location, destination domain.Coordinate, placeID string) error {
	if !s.transport.IsConnected() {
		return core.ErrNotConnected
	}
	s.mu.Lock()
	s.state = StateAwaitingRoom
	s.joinRoomID, s.joinUserID = "", ""
	s.mu.Unlock()
	log.Info().Str("module", "session").Str("name", name).Msg("create room")
	return s.transport.Send(protocol.TypeCreateRoom, protocol.CreateRoomPayload{
		Name:        name,
		Location:    location,
		Destination: destination,
		PlaceID:     placeID,
	})
}

// JoinRoom requests membership of an existing room. The server emits
// JOIN_SUCCESS and USER_ID_ASSIGNED independently; the session defers
// completion until both have arrived, whatever the order.
func (s *Session) JoinRoom(roomID domain.RoomID, name string, location domain.Coordinate) error {
	if !s.transport.IsConnected() {
		return core.ErrNotConnected
	}
	s.mu.Lock()
	s.state = StateAwaitingRoom
	s.joinRoomID, s.joinUserID = "", ""
	s.mu.Unlock()
	log.Info().Str("module", "session").Str("room", string(roomID)).Msg("join room")
	return s.transport.Send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{
		RoomID:   roomID,
		Name:     name,
		Location: location,
	})
}

// UpdateLocation publishes the caller's position. A no-op until the
// session identity is fully assigned; no acknowledgement is awaited.
func (s *Session) UpdateLocation(location domain.Coordinate) error {
	s.mu.Lock()
	roomID, userID := s.roomID, s.userID
	s.mu.Unlock()
	if roomID == "" || userID == "" {
		return nil
	}
	return s.transport.Send(protocol.TypeUpdateLocation, protocol.UpdateLocationPayload{
		UserID:   userID,
		Location: location,
	})
}

// UpdateRoute publishes a route for the given user. Same precondition
// as UpdateLocation.
func (s *Session) UpdateRoute(userID domain.UserID, route domain.Route) error {
	s.mu.Lock()
	roomID, selfID := s.roomID, s.userID
	s.mu.Unlock()
	if roomID == "" || selfID == "" {
		return nil
	}
	return s.transport.Send(protocol.TypeUpdateRoute, protocol.UpdateRoutePayload{
		UserID: userID,
		RoomID: roomID,
		Route:  route,
	})
}

// LeaveRoom notifies the server if identity is present, then clears all
// local session state without waiting for an acknowledgement. The
// server owns reconciling a leave whose frame was lost. Idempotent.
func (s *Session) LeaveRoom() {
	s.departRoom(protocol.TypeLeaveRoom)
}

// TerminateRoom dissolves the room for everyone. Same optimistic local
// cleanup as LeaveRoom.
func (s *Session) TerminateRoom() {
	s.departRoom(protocol.TypeTerminateRoom)
}

func (s *Session) departRoom(msgType string) {
	s.mu.Lock()
	roomID, userID := s.roomID, s.userID
	s.mu.Unlock()
	if roomID != "" && userID != "" {
		_ = s.transport.Send(msgType, protocol.LeaveRoomPayload{
			UserID: userID,
			RoomID: roomID,
		})
	}
	s.reset()
	log.Info().Str("module", "session").Str("type", msgType).Msg("left room")
}

// Close is the scoped teardown: stops the publisher, closes the
// connection and releases identity and snapshot. Idempotent.
func (s *Session) Close() {
	s.publisher.Stop()
	s.transport.Close()
	s.reset()
}

// RoomDetails returns the cached snapshot when it is the current room,
// a recently fetched copy for other rooms, and otherwise performs a
// GET_ROOM_DETAILS round-trip bounded by the request timeout.
func (s *Session) RoomDetails(ctx context.Context, roomID domain.RoomID) (*domain.Room, error) {
	s.mu.Lock()
	if s.snapshot != nil && s.snapshot.ID == roomID {
		snap := s.snapshot.Clone()
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	if room, ok := s.details.Get(roomID); ok {
		return room.Clone(), nil
	}

	reply, err := awaitReply[protocol.RoomDetailsPayload](ctx, s.router, protocol.TypeRoomDetails, s.timeout, func() error {
		return s.transport.Send(protocol.TypeGetRoomDetails, protocol.GetRoomDetailsPayload{RoomID: roomID})
	})
	if err != nil {
		return nil, err
	}
	room := &domain.Room{
		ID:          reply.RoomID,
		Users:       reply.Users,
		Destination: reply.Destination,
		CreatedBy:   reply.CreatedBy,
		CreatedAt:   reply.CreatedAt,
	}
	s.details.Add(roomID, room)
	return room.Clone(), nil
}

// fold merges a room-shaped payload into the snapshot: present fields
// overwrite, absent fields are preserved. A users map is replaced
// wholesale, individual user fields are never merged.
func (s *Session) fold(payload []byte) {
	s.mu.Lock()
	snap := s.snapshot
	if snap == nil {
		snap = &domain.Room{}
	}
	if res := gjson.GetBytes(payload, "users"); res.Exists() {
		var users map[domain.UserID]domain.User
		if err := json.Unmarshal([]byte(res.Raw), &users); err == nil {
			snap.Users = users
		} else {
			log.Error().Err(err).Str("module", "session").Msg("bad users payload")
		}
	}
	if res := gjson.GetBytes(payload, "destination"); res.Exists() {
		var dest domain.Coordinate
		if err := json.Unmarshal([]byte(res.Raw), &dest); err == nil {
			snap.Destination = &dest
		}
	}
	if res := gjson.GetBytes(payload, "roomId"); res.Exists() {
		snap.ID = domain.RoomID(res.String())
	}
	if res := gjson.GetBytes(payload, "createdBy"); res.Exists() {
		snap.CreatedBy = domain.UserID(res.String())
	}
	if res := gjson.GetBytes(payload, "createdAt"); res.Exists() {
		snap.CreatedAt = res.Int()
	}
	s.snapshot = snap
	cp := snap.Clone()
	fn := s.onRoomUpdate
	s.mu.Unlock()

	if fn != nil {
		fn(cp)
	}
}

func (s *Session) handleRoomCreated(payload []byte) {
	var p protocol.RoomCreatedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("bad room created payload")
		return
	}
	s.mu.Lock()
	s.roomID = p.RoomID
	s.userID = p.UserID
	s.state = StateJoined
	fn := s.onJoined
	s.mu.Unlock()

	log.Info().Str("module", "session").Str("room", string(p.RoomID)).Str("user", string(p.UserID)).Msg("room created")
	s.publisher.Start()
	if fn != nil {
		fn(p.RoomID, p.UserID)
	}
}

func (s *Session) handleJoinSuccess(payload []byte) {
	var p protocol.JoinSuccessPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("bad join success payload")
		return
	}
	s.mu.Lock()
	s.joinRoomID = p.RoomID
	s.mu.Unlock()
	s.maybeCompleteJoin()
}

func (s *Session) handleUserIDAssigned(payload []byte) {
	var p protocol.UserIDAssignedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("bad user id payload")
		return
	}
	s.mu.Lock()
	s.joinUserID = p.UserID
	s.mu.Unlock()
	s.maybeCompleteJoin()
}

func (s *Session) maybeCompleteJoin() {
	s.mu.Lock()
	if s.state != StateAwaitingRoom || s.joinRoomID == "" || s.joinUserID == "" {
		s.mu.Unlock()
		return
	}
	s.roomID = s.joinRoomID
	s.userID = s.joinUserID
	s.state = StateJoined
	roomID, userID := s.roomID, s.userID
	fn := s.onJoined
	s.mu.Unlock()

	log.Info().Str("module", "session").Str("room", string(roomID)).Str("user", string(userID)).Msg("joined room")
	s.publisher.Start()
	if fn != nil {
		fn(roomID, userID)
	}
}

func (s *Session) handleError(payload []byte) {
	var p protocol.ErrorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("bad error payload")
		return
	}
	s.mu.Lock()
	if s.state == StateAwaitingRoom {
		s.state = StateIdle
	}
	fn := s.onError
	s.mu.Unlock()

	if fn == nil {
		log.Warn().Str("module", "session").Str("message", p.Message).Msg("server error, no observer")
		return
	}
	fn(&core.ApplicationError{Message: p.Message})
}

// handleDisconnected releases per-session state after any close of the
// underlying connection. Reconnection is the caller's move.
func (s *Session) handleDisconnected(err error) {
	s.reset()
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("disconnected")
	}
}

func (s *Session) reset() {
	s.publisher.Stop()
	s.mu.Lock()
	s.state = StateIdle
	s.roomID, s.userID = "", ""
	s.joinRoomID, s.joinUserID = "", ""
	s.snapshot = nil
	s.mu.Unlock()
}

func (s *Session) publishPosition(pos domain.Coordinate) error {
	if !s.transport.IsConnected() {
		return core.ErrNotConnected
	}
	return s.UpdateLocation(pos)
}

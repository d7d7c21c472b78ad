package devserver_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/convoy/internal/adapters/ws"
	"github.com/dkeye/convoy/internal/core"
	"github.com/dkeye/convoy/internal/devserver"
	"github.com/dkeye/convoy/internal/domain"
	"github.com/dkeye/convoy/internal/geo"
	"github.com/dkeye/convoy/internal/session"
)

type joinEvent struct {
	roomID domain.RoomID
	userID domain.UserID
}

// testClient is one full client stack wired to a running server.
type testClient struct {
	sess    *session.Session
	joined  chan joinEvent
	updates chan *domain.Room
	errs    chan error
}

func startServer(t *testing.T, opts devserver.Options) string {
	t.Helper()
	srv := httptest.NewServer(devserver.New(opts).Router())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func newClient(t *testing.T, url string) *testClient {
	t.Helper()
	transport := ws.New(2 * time.Second)
	router := session.NewRouter()
	transport.OnFrame(router.Dispatch)
	sess := session.New(transport, router, &geo.Static{}, session.Options{
		RequestTimeout: 2 * time.Second,
		// Keep the publisher quiet during protocol assertions.
		PublishInterval: time.Hour,
	})
	t.Cleanup(sess.Close)

	c := &testClient{
		sess:    sess,
		joined:  make(chan joinEvent, 4),
		updates: make(chan *domain.Room, 64),
		errs:    make(chan error, 4),
	}
	sess.OnJoined(func(roomID domain.RoomID, userID domain.UserID) {
		c.joined <- joinEvent{roomID, userID}
	})
	sess.OnRoomUpdate(func(room *domain.Room) { c.updates <- room })
	sess.OnError(func(err error) { c.errs <- err })

	if err := transport.Connect(context.Background(), url); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return c
}

func (c *testClient) waitJoined(t *testing.T) joinEvent {
	t.Helper()
	select {
	case ev := <-c.joined:
		return ev
	case err := <-c.errs:
		t.Fatalf("server error instead of join: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("join never completed")
	}
	return joinEvent{}
}

// waitRoom drains updates until cond holds or the deadline passes.
func (c *testClient) waitRoom(t *testing.T, cond func(*domain.Room) bool) *domain.Room {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case room := <-c.updates:
			if cond(room) {
				return room
			}
		case <-deadline:
			t.Fatal("room never reached expected state")
			return nil
		}
	}
}

func TestCreateRoomRoundTrip(t *testing.T) {
	url := startServer(t, devserver.Options{})
	alice := newClient(t, url)

	dest := domain.Coordinate{Latitude: 52.5163, Longitude: 13.3777}
	if err := alice.sess.CreateRoom("alice", domain.Coordinate{Latitude: 52.52, Longitude: 13.405}, dest, "plz1"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	ev := alice.waitJoined(t)
	if ev.roomID == "" || ev.userID == "" {
		t.Fatalf("joined with empty identity: %+v", ev)
	}
	roomID, userID := alice.sess.RoomAndUserIDs()
	if roomID != ev.roomID || userID != ev.userID {
		t.Errorf("session identity (%q, %q) != event (%q, %q)", roomID, userID, ev.roomID, ev.userID)
	}

	room := alice.waitRoom(t, func(r *domain.Room) bool { return len(r.Users) == 1 })
	if room.Destination == nil || room.Destination.Latitude != dest.Latitude {
		t.Errorf("destination = %+v, want %+v", room.Destination, dest)
	}
}

func TestJoinSeesOtherMembers(t *testing.T) {
	orders := map[string]devserver.Options{
		"join success first": {IdentityFirst: false},
		"identity first":     {IdentityFirst: true},
	}
	for name, opts := range orders {
		t.Run(name, func(t *testing.T) {
			url := startServer(t, opts)
			alice := newClient(t, url)
			if err := alice.sess.CreateRoom("alice", domain.Coordinate{Latitude: 1}, domain.Coordinate{Latitude: 2}, ""); err != nil {
				t.Fatalf("CreateRoom failed: %v", err)
			}
			ev := alice.waitJoined(t)

			bob := newClient(t, url)
			if err := bob.sess.JoinRoom(ev.roomID, "bob", domain.Coordinate{Latitude: 1.1}); err != nil {
				t.Fatalf("JoinRoom failed: %v", err)
			}
			bobEv := bob.waitJoined(t)
			if bobEv.roomID != ev.roomID {
				t.Errorf("bob joined %q, want %q", bobEv.roomID, ev.roomID)
			}
			if bobEv.userID == ev.userID {
				t.Error("bob and alice share a user id")
			}

			// Both sides converge on two members.
			alice.waitRoom(t, func(r *domain.Room) bool { return len(r.Users) == 2 })
			bob.waitRoom(t, func(r *domain.Room) bool { return len(r.Users) == 2 })
		})
	}
}

func TestLocationFanOut(t *testing.T) {
	url := startServer(t, devserver.Options{})
	alice := newClient(t, url)
	if err := alice.sess.CreateRoom("alice", domain.Coordinate{}, domain.Coordinate{}, ""); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	ev := alice.waitJoined(t)

	bob := newClient(t, url)
	if err := bob.sess.JoinRoom(ev.roomID, "bob", domain.Coordinate{}); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	bobEv := bob.waitJoined(t)

	pos := domain.Coordinate{Latitude: 48.8584, Longitude: 2.2945}
	if err := bob.sess.UpdateLocation(pos); err != nil {
		t.Fatalf("UpdateLocation failed: %v", err)
	}

	room := alice.waitRoom(t, func(r *domain.Room) bool {
		u, ok := r.Users[bobEv.userID]
		return ok && u.Location != nil && u.Location.Latitude == pos.Latitude
	})
	if room.Users[bobEv.userID].Location.Longitude != pos.Longitude {
		t.Errorf("bob location = %+v", room.Users[bobEv.userID].Location)
	}
}

func TestRouteFanOut(t *testing.T) {
	url := startServer(t, devserver.Options{})
	alice := newClient(t, url)
	if err := alice.sess.CreateRoom("alice", domain.Coordinate{}, domain.Coordinate{}, ""); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	ev := alice.waitJoined(t)

	route := domain.Route{Points: "gfo}EtohhU", Duration: "25 min", Distance: "8 km", Mode: domain.ModeDriving}
	if err := alice.sess.UpdateRoute(ev.userID, route); err != nil {
		t.Fatalf("UpdateRoute failed: %v", err)
	}

	room := alice.waitRoom(t, func(r *domain.Room) bool {
		u, ok := r.Users[ev.userID]
		return ok && u.Route != nil
	})
	if got := room.Users[ev.userID].Route; got.Points != route.Points || got.Mode != route.Mode {
		t.Errorf("route = %+v, want %+v", got, route)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	url := startServer(t, devserver.Options{})
	bob := newClient(t, url)

	if err := bob.sess.JoinRoom("no-such-room", "bob", domain.Coordinate{}); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	select {
	case err := <-bob.errs:
		var appErr *core.ApplicationError
		if !errors.As(err, &appErr) {
			t.Fatalf("err = %v, want ApplicationError", err)
		}
	case <-bob.joined:
		t.Fatal("joined a room that does not exist")
	case <-time.After(3 * time.Second):
		t.Fatal("no error arrived")
	}
	if bob.sess.State() != session.StateIdle {
		t.Errorf("state = %v, want idle", bob.sess.State())
	}
}

func TestLeaveBroadcast(t *testing.T) {
	url := startServer(t, devserver.Options{})
	alice := newClient(t, url)
	if err := alice.sess.CreateRoom("alice", domain.Coordinate{}, domain.Coordinate{}, ""); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	ev := alice.waitJoined(t)

	bob := newClient(t, url)
	if err := bob.sess.JoinRoom(ev.roomID, "bob", domain.Coordinate{}); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	bob.waitJoined(t)
	alice.waitRoom(t, func(r *domain.Room) bool { return len(r.Users) == 2 })

	bob.sess.LeaveRoom()

	alice.waitRoom(t, func(r *domain.Room) bool { return len(r.Users) == 1 })
	if roomID, userID := bob.sess.RoomAndUserIDs(); roomID != "" || userID != "" {
		t.Errorf("bob identity after leave = (%q, %q), want empty", roomID, userID)
	}
}

func TestRoomDetailsLookup(t *testing.T) {
	url := startServer(t, devserver.Options{})
	alice := newClient(t, url)
	dest := domain.Coordinate{Latitude: 3, Longitude: 4}
	if err := alice.sess.CreateRoom("alice", domain.Coordinate{}, dest, ""); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	ev := alice.waitJoined(t)

	// A second client that never joins can still look the room up.
	carol := newClient(t, url)
	room, err := carol.sess.RoomDetails(context.Background(), ev.roomID)
	if err != nil {
		t.Fatalf("RoomDetails failed: %v", err)
	}
	if room.ID != ev.roomID || room.CreatedBy != ev.userID {
		t.Errorf("room = %+v", room)
	}
	if room.Destination == nil || room.Destination.Latitude != dest.Latitude {
		t.Errorf("destination = %+v", room.Destination)
	}
}

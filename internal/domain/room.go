package domain

type RoomID string

// Room is the locally cached mirror of server room state. Fields are
// filled in incrementally as payloads arrive, so everything except Users
// may be absent for a while.
type Room struct {
	ID          RoomID          `json:"roomId"`
	Users       map[UserID]User `json:"users"`
	Destination *Coordinate     `json:"destination,omitempty"`
	CreatedBy   UserID          `json:"createdBy,omitempty"`
	CreatedAt   int64           `json:"createdAt,omitempty"`
}

// Clone returns a deep enough copy to hand across a lock boundary.
// User values are copied by value; their pointer fields are treated as
// immutable once set.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Users != nil {
		cp.Users = make(map[UserID]User, len(r.Users))
		for id, u := range r.Users {
			cp.Users[id] = u
		}
	}
	if r.Destination != nil {
		d := *r.Destination
		cp.Destination = &d
	}
	return &cp
}

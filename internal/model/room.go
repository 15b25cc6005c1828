package model

import (
	"strings"
	"time"
)

// Gender is the gender policy of a room or the declared gender of a
// student.  Rooms additionally accept GenderBoth.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderBoth   Gender = "both"
)

// Allows reports whether a room with policy g accepts a student who
// declared the given gender.  Comparison is case-insensitive and an
// empty policy behaves like GenderBoth.
func (g Gender) Allows(declared string) bool {
	policy := Gender(strings.ToLower(strings.TrimSpace(string(g))))
	if policy == "" || policy == GenderBoth {
		return true
	}
	return Gender(strings.ToLower(strings.TrimSpace(declared))) == policy
}

// RoomStatus is derived from occupancy and capacity; it is never set
// independently.
type RoomStatus string

const (
	RoomAvailable         RoomStatus = "available"
	RoomPartiallyOccupied RoomStatus = "partially_occupied"
	RoomOccupied          RoomStatus = "occupied"
)

// DeriveRoomStatus maps an occupancy count onto the room status.  It is a
// pure function of its arguments.
func DeriveRoomStatus(occupancy, capacity int) RoomStatus {
	switch {
	case occupancy <= 0:
		return RoomAvailable
	case occupancy >= capacity:
		return RoomOccupied
	default:
		return RoomPartiallyOccupied
	}
}

// Room represents a row in the `rooms` table.  Capacity is between one
// and four beds.  CurrentOccupancy and Status are maintained by the
// occupancy reconciler and must not be written elsewhere.
//
// Fields:
//
//	ID               – primary key identifier.
//	HostelID         – owning hostel.
//	RoomNumber       – label shown to staff.
//	Capacity         – number of beds (1–4).
//	Price            – price per semester in whole currency units.
//	GenderAllowed    – male, female or both.
//	CurrentOccupancy – count of legitimately registered occupants.
//	Status           – derived from CurrentOccupancy and Capacity.
type Room struct {
	ID               uint64     // rooms.id
	HostelID         uint64     // rooms.hostel_id
	RoomNumber       string     // rooms.room_number
	Capacity         int        // rooms.capacity
	Price            int64      // rooms.price
	GenderAllowed    Gender     // rooms.gender_allowed
	CurrentOccupancy int        // rooms.current_occupancy
	Status           RoomStatus // rooms.status
	UpdatedAt        time.Time  // rooms.updated_at
}

// RoomOccupancy is the result of a reconciliation pass over one room.
type RoomOccupancy struct {
	RoomID    uint64     `json:"room_id"`
	Capacity  int        `json:"capacity"`
	Occupancy int        `json:"occupancy"`
	Status    RoomStatus `json:"status"`
}

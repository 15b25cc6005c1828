package model

import "time"

// BookingStatus is the lifecycle of a public booking.  Only pending
// bookings may expire.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingBooked    BookingStatus = "booked"
	BookingCheckedIn BookingStatus = "checked_in"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
	BookingExpired   BookingStatus = "expired"
)

// PublicBooking is a self-service reservation attempt that has not yet
// been reconciled into a registration.
type PublicBooking struct {
	ID        uint64        // public_bookings.id
	HostelID  uint64        // public_bookings.hostel_id
	RoomID    *uint64       // public_bookings.room_id (nullable)
	Email     string        // public_bookings.email
	Status    BookingStatus // public_bookings.status
	CreatedAt time.Time     // public_bookings.created_at
}

// ReservationStatus is the state of a pre-booking for a future semester.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// RoomReservation holds a room for a student in a future semester.
type RoomReservation struct {
	ID         uint64            // room_reservations.id
	UserID     uint64            // room_reservations.user_id
	RoomID     uint64            // room_reservations.room_id
	SemesterID uint64            // room_reservations.semester_id
	Status     ReservationStatus // room_reservations.status
	CreatedAt  time.Time         // room_reservations.created_at
}

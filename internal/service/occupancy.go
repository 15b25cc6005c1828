package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

// OccupancyService owns the room capacity calculation.  Reconcile is the
// only code that writes rooms.current_occupancy and rooms.status.
type OccupancyService struct {
	tx          Transactor
	caps        CapabilityProvider
	rooms       RoomStore
	assignments AssignmentStore
	audit       AuditLog
	logger      *slog.Logger
}

// NewOccupancyService wires the calculator.  audit and logger may be nil.
func NewOccupancyService(tx Transactor, caps CapabilityProvider, stores Stores, audit AuditLog, logger *slog.Logger) *OccupancyService {
	if audit == nil {
		audit = nopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OccupancyService{
		tx:          tx,
		caps:        caps,
		rooms:       stores.Rooms,
		assignments: stores.Assignments,
		audit:       audit,
		logger:      logger,
	}
}

// Reconcile recomputes and persists occupancy for each room inside the
// caller's transaction.  Rooms are locked first (a no-op for rows the
// transaction already holds), counts are taken under the lock, and
// missing rooms are skipped.  It is idempotent.
func (s *OccupancyService) Reconcile(ctx context.Context, tx database.DBTX, caps repository.Capabilities, roomIDs ...uint64) ([]model.RoomOccupancy, error) {
	rooms, err := s.rooms.LockTx(ctx, tx, roomIDs)
	if err != nil {
		return nil, err
	}
	out := make([]model.RoomOccupancy, 0, len(rooms))
	for _, id := range slices.Sorted(maps.Keys(rooms)) {
		room := rooms[id]
		n, err := s.rooms.CountOccupantsTx(ctx, tx, caps, id, 0)
		if err != nil {
			return nil, err
		}
		if n > room.Capacity {
			s.logger.Warn("room occupancy exceeds capacity", "room_id", id, "occupancy", n, "capacity", room.Capacity)
			n = room.Capacity
		}
		status := model.DeriveRoomStatus(n, room.Capacity)
		if err := s.rooms.UpdateOccupancyTx(ctx, tx, id, n, status); err != nil {
			return nil, err
		}
		out = append(out, model.RoomOccupancy{RoomID: id, Capacity: room.Capacity, Occupancy: n, Status: status})
	}
	return out, nil
}

// Recompute reconciles a single room in its own transaction.
func (s *OccupancyService) Recompute(ctx context.Context, roomID uint64) (model.RoomOccupancy, error) {
	caps, err := s.caps.Capabilities(ctx)
	if err != nil {
		return model.RoomOccupancy{}, classify(err)
	}
	var result model.RoomOccupancy
	err = s.tx.WithinTx(ctx, func(tx database.DBTX) error {
		occ, err := s.Reconcile(ctx, tx, caps, roomID)
		if err != nil {
			return err
		}
		if len(occ) == 0 {
			return newError(KindRoomNotFound, "room not found")
		}
		result = occ[0]
		return nil
	})
	if err != nil {
		return model.RoomOccupancy{}, classify(err)
	}
	return result, nil
}

// Get returns the persisted occupancy of a room without recomputing it.
func (s *OccupancyService) Get(ctx context.Context, roomID uint64) (model.RoomOccupancy, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.RoomOccupancy{}, newError(KindRoomNotFound, "room not found")
		}
		return model.RoomOccupancy{}, classify(err)
	}
	return model.RoomOccupancy{
		RoomID:    room.ID,
		Capacity:  room.Capacity,
		Occupancy: room.CurrentOccupancy,
		Status:    model.DeriveRoomStatus(room.CurrentOccupancy, room.Capacity),
	}, nil
}

// authorize loads the room outside any transaction and checks that the
// actor manages its hostel.
func (s *OccupancyService) authorize(ctx context.Context, actor Actor, roomID uint64) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindRoomNotFound, "room not found")
		}
		return classify(err)
	}
	if !actor.CanManage(room.HostelID) {
		return newError(KindForbidden, "you cannot manage rooms of this hostel")
	}
	return nil
}

// GetFor is Get restricted to rooms the actor manages.
func (s *OccupancyService) GetFor(ctx context.Context, actor Actor, roomID uint64) (model.RoomOccupancy, error) {
	if err := s.authorize(ctx, actor, roomID); err != nil {
		return model.RoomOccupancy{}, err
	}
	return s.Get(ctx, roomID)
}

// RecomputeFor is Recompute restricted to rooms the actor manages.
func (s *OccupancyService) RecomputeFor(ctx context.Context, actor Actor, roomID uint64) (model.RoomOccupancy, error) {
	if err := s.authorize(ctx, actor, roomID); err != nil {
		return model.RoomOccupancy{}, err
	}
	occ, err := s.Recompute(ctx, roomID)
	if err != nil {
		return occ, err
	}
	s.audit.Append(ctx, "room.reconciled", actor.UserID, roomID, map[string]any{"occupancy": occ.Occupancy})
	return occ, nil
}

// CancelAssignment cancels an active room assignment and reconciles the
// room it released.
func (s *OccupancyService) CancelAssignment(ctx context.Context, actor Actor, assignmentID uint64) (model.RoomOccupancy, error) {
	caps, err := s.caps.Capabilities(ctx)
	if err != nil {
		return model.RoomOccupancy{}, classify(err)
	}
	var result model.RoomOccupancy
	err = s.tx.WithinTx(ctx, func(tx database.DBTX) error {
		a, err := s.assignments.GetByIDTx(ctx, tx, caps, assignmentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return newError(KindAssignmentNotFound, "assignment not found")
			}
			return err
		}
		rooms, err := s.rooms.LockTx(ctx, tx, []uint64{a.RoomID})
		if err != nil {
			return err
		}
		room, ok := rooms[a.RoomID]
		if !ok {
			return newError(KindRoomNotFound, "room not found")
		}
		if !actor.CanManage(room.HostelID) {
			return newError(KindForbidden, "you cannot manage assignments of this hostel")
		}
		if a.Status != model.AssignmentActive {
			return newError(KindPersistenceConflict, "assignment is not active")
		}
		if err := s.assignments.SetStatusTx(ctx, tx, a.ID, model.AssignmentActive, model.AssignmentCancelled); err != nil {
			return err
		}
		occ, err := s.Reconcile(ctx, tx, caps, a.RoomID)
		if err != nil {
			return err
		}
		result = occ[0]
		return nil
	})
	if err != nil {
		return model.RoomOccupancy{}, classify(err)
	}
	s.audit.Append(ctx, "assignment.cancelled", actor.UserID, assignmentID, map[string]any{
		"room_id":   result.RoomID,
		"occupancy": result.Occupancy,
	})
	return result, nil
}

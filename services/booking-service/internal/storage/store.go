package storage

import (
	"context"

	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/libs/outbox"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/jackc/pgx/v5"
)

var (
	_ booking.Store         = (*Store)(nil)
	_ booking.Transactional = (*Store)(nil)
	_ booking.StaffLookup   = (*Store)(nil)
)

// Store binds the repositories to either the pool or one open transaction.
type Store struct {
	pool   *db.Pool
	tx     pgx.Tx
	q      db.Querier
	outbox *outbox.Repository
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool, q: pool, outbox: outbox.NewRepository()}
}

func (s *Store) Doctors() *DoctorRepository           { return NewDoctorRepository(s.q) }
func (s *Store) Slots() *SlotRepository               { return NewSlotRepository(s.q) }
func (s *Store) Appointments() *AppointmentRepository { return NewAppointmentRepository(s.q) }
func (s *Store) Staff() *StaffRepository              { return NewStaffRepository(s.q) }
func (s *Store) Reconciliation() *ReconciliationRepository {
	return NewReconciliationRepository(s.q)
}

func (s *Store) Overview(ctx context.Context) (model.Overview, error) {
	return Overview(ctx, s.q)
}

// InTx runs fn against a Store bound to a new transaction. Nested calls
// reuse the open transaction.
func (s *Store) InTx(ctx context.Context, fn func(booking.Store) error) error {
	return s.Tx(ctx, func(tx *Store) error { return fn(tx) })
}

func (s *Store) Tx(ctx context.Context, fn func(*Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, tx: tx, q: tx, outbox: s.outbox})
	})
}

func (s *Store) GetSlot(ctx context.Context, slotID string) (model.TimeSlot, error) {
	v, err := s.Slots().Get(ctx, slotID)
	return v, classify(err)
}

func (s *Store) GetDoctor(ctx context.Context, doctorID string) (model.Doctor, error) {
	v, err := s.Doctors().Get(ctx, doctorID)
	return v, classify(err)
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error) {
	v, err := s.Appointments().Get(ctx, appointmentID)
	return v, classify(err)
}

func (s *Store) GetStaffByUserID(ctx context.Context, userID string) (model.StaffAccount, error) {
	v, err := s.Staff().GetByUserID(ctx, userID)
	return v, classify(err)
}

func (s *Store) SwapSlotAvailability(ctx context.Context, slotID string, expected, next bool) (bool, error) {
	v, err := s.Slots().SwapAvailability(ctx, slotID, expected, next)
	return v, classify(err)
}

func (s *Store) InsertAppointment(ctx context.Context, appt *model.Appointment) error {
	return classify(s.Appointments().Insert(ctx, appt))
}

func (s *Store) SwapAppointmentStatus(ctx context.Context, appointmentID string, expected, next model.AppointmentStatus) (bool, error) {
	v, err := s.Appointments().SwapStatus(ctx, appointmentID, expected, next)
	return v, classify(err)
}

// RecordEvent writes to the outbox. Inside a transaction the insert runs
// under a savepoint so a failed insert leaves the surrounding writes intact.
func (s *Store) RecordEvent(ctx context.Context, evt outbox.Event) error {
	if s.tx == nil {
		return classify(s.outbox.Insert(ctx, s.q, evt))
	}
	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, sp, evt); err != nil {
		_ = sp.Rollback(ctx)
		return classify(err)
	}
	return sp.Commit(ctx)
}

func (s *Store) RecordReconciliation(ctx context.Context, item model.ReconciliationItem) error {
	return classify(s.Reconciliation().Insert(ctx, item))
}

func (s *Store) ListDoctors(ctx context.Context) ([]model.Doctor, error) {
	v, err := s.Doctors().List(ctx, false)
	return v, classify(err)
}

func (s *Store) ListOpenSlots(ctx context.Context, doctorID, fromDate string) ([]model.TimeSlot, error) {
	v, err := s.Slots().ListByDoctor(ctx, doctorID, SlotFilter{AvailableOnly: true, FromDate: fromDate})
	return v, classify(err)
}

func (s *Store) ClaimReconciliation(ctx context.Context, limit int) ([]model.ReconciliationItem, error) {
	v, err := s.Reconciliation().ClaimOpen(ctx, limit)
	return v, classify(err)
}

func (s *Store) ResolveReconciliation(ctx context.Context, id int64, detail string) error {
	return classify(s.Reconciliation().Resolve(ctx, id, detail))
}

func (s *Store) BumpReconciliation(ctx context.Context, id int64, detail string) error {
	return classify(s.Reconciliation().Bump(ctx, id, detail))
}

// SlotHeld reports whether a pending or confirmed appointment references the slot.
func (s *Store) SlotHeld(ctx context.Context, slotID string) (bool, error) {
	_, held, err := s.Appointments().ActiveForSlot(ctx, slotID)
	return held, classify(err)
}

func (s *Store) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.AppointmentView, error) {
	return s.Appointments().List(ctx, f)
}

// Staff and admin screens.

func (s *Store) ListDoctorsForStaff(ctx context.Context, includeArchived bool) ([]model.Doctor, error) {
	v, err := s.Doctors().List(ctx, includeArchived)
	return v, classify(err)
}

func (s *Store) CreateDoctor(ctx context.Context, d *model.Doctor) error {
	return classify(s.Doctors().Create(ctx, d))
}

func (s *Store) UpdateDoctor(ctx context.Context, d *model.Doctor) error {
	return classify(s.Doctors().Update(ctx, d))
}

func (s *Store) ArchiveDoctor(ctx context.Context, id, today string) error {
	return classify(s.Doctors().Archive(ctx, id, today))
}

func (s *Store) SetDoctorImage(ctx context.Context, id, url string) error {
	return classify(s.Doctors().SetImage(ctx, id, url))
}

func (s *Store) ListSlots(ctx context.Context, doctorID string, f SlotFilter) ([]model.TimeSlot, error) {
	v, err := s.Slots().ListByDoctor(ctx, doctorID, f)
	return v, classify(err)
}

// CreateSlots inserts the slots in one transaction; a conflict on any of
// them rolls back the whole batch.
func (s *Store) CreateSlots(ctx context.Context, slots []model.TimeSlot) ([]model.TimeSlot, error) {
	created := make([]model.TimeSlot, 0, len(slots))
	err := s.Tx(ctx, func(tx *Store) error {
		for _, slot := range slots {
			if err := tx.Slots().Create(ctx, &slot); err != nil {
				return err
			}
			created = append(created, slot)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return created, nil
}

func (s *Store) ToggleSlot(ctx context.Context, id string, expected, next bool) (model.TimeSlot, error) {
	v, err := s.Slots().Toggle(ctx, id, expected, next)
	return v, classify(err)
}

func (s *Store) DeleteSlot(ctx context.Context, id string) error {
	return classify(s.Slots().Delete(ctx, id))
}

func (s *Store) ListStaff(ctx context.Context) ([]model.StaffAccount, error) {
	v, err := s.Staff().List(ctx)
	return v, classify(err)
}

func (s *Store) CreateStaff(ctx context.Context, acct *model.StaffAccount) error {
	return classify(s.Staff().Create(ctx, acct))
}

func (s *Store) UpdateStaff(ctx context.Context, id string, p StaffPatch) (model.StaffAccount, error) {
	v, err := s.Staff().Update(ctx, id, p)
	return v, classify(err)
}

func (s *Store) DeleteStaff(ctx context.Context, id string) (model.StaffAccount, error) {
	v, err := s.Staff().Delete(ctx, id)
	return v, classify(err)
}

func (s *Store) RecentReconciliation(ctx context.Context, openOnly bool, limit int) ([]model.ReconciliationItem, error) {
	v, err := s.Reconciliation().Recent(ctx, openOnly, limit)
	return v, classify(err)
}

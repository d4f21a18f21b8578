// Package bookingtest provides an in-memory booking.Store with fault
// injection for tests.
package bookingtest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/healthcarepro/clinicbook/libs/outbox"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
)

var ErrInjected = errors.New("injected store failure")

// Store keeps records in maps guarded by one mutex, so every conditional
// write is atomic exactly like a single-row UPDATE ... WHERE.
type Store struct {
	mu        sync.Mutex
	doctors   map[string]model.Doctor
	slots     map[string]model.TimeSlot
	appts     map[string]model.Appointment
	staff     map[string]model.StaffAccount
	events    []outbox.Event
	reconcile []model.ReconciliationItem

	// Fault injection. Errors are returned while set; the *Failures counters
	// fail that many calls and then recover.
	InsertErr         error
	EventErr          error
	ReconcileErr      error
	SlotWriteFailures int
	SlotReleaseErr    error
	StatusWriteErr    error
	BeforeSlotWrite   func()
	SlotWriteAttempts int
}

func NewStore() *Store {
	return &Store{
		doctors: map[string]model.Doctor{},
		slots:   map[string]model.TimeSlot{},
		appts:   map[string]model.Appointment{},
		staff:   map[string]model.StaffAccount{},
	}
}

func (s *Store) AddDoctor(d model.Doctor) model.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.doctors[d.ID] = d
	return d
}

func (s *Store) AddSlot(slot model.TimeSlot) model.TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	s.slots[slot.ID] = slot
	return slot
}

func (s *Store) AddStaff(acct model.StaffAccount) model.StaffAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	s.staff[acct.UserID] = acct
	return acct
}

func (s *Store) Slot(id string) model.TimeSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[id]
}

func (s *Store) Appointments() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		out = append(out, a)
	}
	return out
}

// ActiveAppointmentsForSlot counts non-cancelled appointments on a slot.
func (s *Store) ActiveAppointmentsForSlot(slotID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeForSlot(slotID)
}

func (s *Store) activeForSlot(slotID string) int {
	n := 0
	for _, a := range s.appts {
		if a.TimeSlotID == slotID && a.Status.HoldsSlot() {
			n++
		}
	}
	return n
}

func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}

func (s *Store) Reconciliations() []model.ReconciliationItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ReconciliationItem(nil), s.reconcile...)
}

func (s *Store) GetSlot(_ context.Context, slotID string) (model.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return model.TimeSlot{}, fmt.Errorf("slot %s: %w", slotID, booking.ErrNotFound)
	}
	return slot, nil
}

func (s *Store) GetDoctor(_ context.Context, doctorID string) (model.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[doctorID]
	if !ok {
		return model.Doctor{}, fmt.Errorf("doctor %s: %w", doctorID, booking.ErrNotFound)
	}
	return d, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, booking.ErrNotFound)
	}
	return a, nil
}

func (s *Store) GetStaffByUserID(_ context.Context, userID string) (model.StaffAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.staff[userID]
	if !ok {
		return model.StaffAccount{}, fmt.Errorf("staff %s: %w", userID, booking.ErrNotFound)
	}
	return acct, nil
}

// ListDoctors returns doctors that are not archived, ordered by name.
func (s *Store) ListDoctors(_ context.Context) ([]model.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Doctor
	for _, d := range s.doctors {
		if d.ArchivedAt == nil {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListOpenSlots returns available slots of a doctor dated fromDate or later,
// in no particular order.
func (s *Store) ListOpenSlots(_ context.Context, doctorID, fromDate string) ([]model.TimeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TimeSlot
	for _, slot := range s.slots {
		if slot.DoctorID == doctorID && slot.Available && slot.Date >= fromDate {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *Store) SwapSlotAvailability(_ context.Context, slotID string, expected, next bool) (bool, error) {
	if hook := s.beforeSlotWrite(); hook != nil {
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SlotWriteAttempts++
	if s.SlotWriteFailures > 0 {
		s.SlotWriteFailures--
		return false, ErrInjected
	}
	if next && s.SlotReleaseErr != nil {
		return false, s.SlotReleaseErr
	}
	slot, ok := s.slots[slotID]
	if !ok {
		return false, fmt.Errorf("slot %s: %w", slotID, booking.ErrNotFound)
	}
	if slot.Available != expected {
		return false, nil
	}
	slot.Available = next
	s.slots[slotID] = slot
	return true, nil
}

func (s *Store) beforeSlotWrite() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.BeforeSlotWrite
}

func (s *Store) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	if s.activeForSlot(appt.TimeSlotID) > 0 {
		return booking.ErrLostRace
	}
	now := time.Now().UTC()
	appt.ID = uuid.NewString()
	appt.CreatedAt, appt.UpdatedAt = now, now
	s.appts[appt.ID] = *appt
	return nil
}

func (s *Store) SwapAppointmentStatus(_ context.Context, id string, expected, next model.AppointmentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatusWriteErr != nil {
		return false, s.StatusWriteErr
	}
	a, ok := s.appts[id]
	if !ok {
		return false, fmt.Errorf("appointment %s: %w", id, booking.ErrNotFound)
	}
	if a.Status != expected {
		return false, nil
	}
	a.Status = next
	a.UpdatedAt = time.Now().UTC()
	s.appts[id] = a
	return true, nil
}

func (s *Store) RecordEvent(_ context.Context, evt outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EventErr != nil {
		return s.EventErr
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *Store) RecordReconciliation(_ context.Context, item model.ReconciliationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReconcileErr != nil {
		return s.ReconcileErr
	}
	item.ID = int64(len(s.reconcile) + 1)
	item.CreatedAt = time.Now().UTC()
	s.reconcile = append(s.reconcile, item)
	return nil
}

// TxStore wraps Store with all-or-nothing transactions: transactions run one
// at a time and every map is restored when fn fails.
type TxStore struct {
	*Store
	txMu sync.Mutex
}

func NewTxStore() *TxStore {
	return &TxStore{Store: NewStore()}
}

func (t *TxStore) InTx(_ context.Context, fn func(booking.Store) error) error {
	t.txMu.Lock()
	defer t.txMu.Unlock()

	t.mu.Lock()
	slots, appts := maps.Clone(t.slots), maps.Clone(t.appts)
	events, rec := len(t.events), len(t.reconcile)
	t.mu.Unlock()

	if err := fn(t.Store); err != nil {
		t.mu.Lock()
		t.slots, t.appts = slots, appts
		t.events, t.reconcile = t.events[:events], t.reconcile[:rec]
		t.mu.Unlock()
		return err
	}
	return nil
}

var (
	_ booking.Store         = (*Store)(nil)
	_ booking.Transactional = (*TxStore)(nil)
	_ booking.StaffLookup   = (*Store)(nil)
)

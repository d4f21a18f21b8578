package handlers

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/audit"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/storage"
)

// memRecords keeps the staff and admin records in memory and applies the
// same refusal rules as the Postgres repositories.
type memRecords struct {
	mu      sync.Mutex
	doctors map[string]model.Doctor
	slots   map[string]model.TimeSlot
	// held marks slots with a pending or confirmed appointment; booked marks
	// slots any appointment ever referenced.
	held   map[string]bool
	booked map[string]bool
	staff  map[string]model.StaffAccount
}

var (
	_ DoctorStore         = (*memRecords)(nil)
	_ SlotStore           = (*memRecords)(nil)
	_ AdminStore          = (*memRecords)(nil)
	_ booking.StaffLookup = (*memRecords)(nil)
)

func newMemRecords() *memRecords {
	return &memRecords{
		doctors: map[string]model.Doctor{},
		slots:   map[string]model.TimeSlot{},
		held:    map[string]bool{},
		booked:  map[string]bool{},
		staff:   map[string]model.StaffAccount{},
	}
}

func (m *memRecords) addDoctor(d model.Doctor) model.Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.NewString()
	m.doctors[d.ID] = d
	return d
}

func (m *memRecords) addSlot(s model.TimeSlot) model.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.NewString()
	m.slots[s.ID] = s
	return s
}

func (m *memRecords) addStaff(a model.StaffAccount) model.StaffAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.NewString()
	m.staff[a.ID] = a
	return a
}

func (m *memRecords) slot(id string) model.TimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[id]
}

func (m *memRecords) account(id string) (model.StaffAccount, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.staff[id]
	return a, ok
}

func missing(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, booking.ErrNotFound)
}

func (m *memRecords) GetStaffByUserID(_ context.Context, userID string) (model.StaffAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.staff {
		if a.UserID == userID {
			return a, nil
		}
	}
	return model.StaffAccount{}, missing("staff account", userID)
}

func (m *memRecords) GetDoctor(_ context.Context, id string) (model.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return model.Doctor{}, missing("doctor", id)
	}
	return d, nil
}

func (m *memRecords) ListDoctorsForStaff(_ context.Context, includeArchived bool) ([]model.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Doctor
	for _, d := range m.doctors {
		if d.ArchivedAt == nil || includeArchived {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRecords) CreateDoctor(_ context.Context, d *model.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.NewString()
	m.doctors[d.ID] = *d
	return nil
}

func (m *memRecords) UpdateDoctor(_ context.Context, d *model.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[d.ID]; !ok {
		return missing("doctor", d.ID)
	}
	m.doctors[d.ID] = *d
	return nil
}

func (m *memRecords) ArchiveDoctor(_ context.Context, id, today string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok || d.ArchivedAt != nil {
		return missing("doctor", id)
	}
	for _, s := range m.slots {
		if s.DoctorID == id && s.Date >= today {
			return storage.ErrInUse
		}
	}
	now := time.Now()
	d.ArchivedAt = &now
	m.doctors[id] = d
	return nil
}

func (m *memRecords) SetDoctorImage(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return missing("doctor", id)
	}
	d.ProfileImageURL = url
	m.doctors[id] = d
	return nil
}

func (m *memRecords) ListSlots(_ context.Context, doctorID string, f storage.SlotFilter) ([]model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date >= f.FromDate {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b model.TimeSlot) int {
		return cmp.Or(strings.Compare(a.Date, b.Date), strings.Compare(a.StartTime, b.StartTime))
	})
	return out, nil
}

func (m *memRecords) CreateSlots(_ context.Context, slots []model.TimeSlot) ([]model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		if _, ok := m.doctors[s.DoctorID]; !ok {
			return nil, missing("doctor", s.DoctorID)
		}
		for _, have := range m.slots {
			if have.DoctorID == s.DoctorID && have.Date == s.Date && have.StartTime == s.StartTime {
				return nil, storage.ErrConflict
			}
		}
	}
	created := make([]model.TimeSlot, 0, len(slots))
	for _, s := range slots {
		s.ID = uuid.NewString()
		m.slots[s.ID] = s
		created = append(created, s)
	}
	return created, nil
}

func (m *memRecords) ToggleSlot(_ context.Context, id string, expected, next bool) (model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	switch {
	case !ok:
		return model.TimeSlot{}, missing("time slot", id)
	case s.Available != expected:
		return s, storage.ErrStaleWrite
	case next && m.held[id]:
		return s, storage.ErrInUse
	}
	s.Available = next
	m.slots[id] = s
	return s, nil
}

func (m *memRecords) DeleteSlot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return missing("time slot", id)
	}
	if m.booked[id] {
		return storage.ErrInUse
	}
	delete(m.slots, id)
	return nil
}

func (m *memRecords) Overview(context.Context) (model.Overview, error) {
	return model.Overview{}, nil
}

func (m *memRecords) ListAppointments(context.Context, storage.AppointmentFilter) ([]model.AppointmentView, error) {
	return nil, nil
}

func (m *memRecords) ListStaff(context.Context) ([]model.StaffAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StaffAccount
	for _, a := range m.staff {
		out = append(out, a)
	}
	return out, nil
}

func (m *memRecords) CreateStaff(_ context.Context, acct *model.StaffAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.staff {
		if a.Email == acct.Email || a.UserID == acct.UserID {
			return storage.ErrConflict
		}
	}
	acct.ID = uuid.NewString()
	m.staff[acct.ID] = *acct
	return nil
}

func (m *memRecords) UpdateStaff(_ context.Context, id string, p storage.StaffPatch) (model.StaffAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.staff[id]
	if !ok {
		return model.StaffAccount{}, missing("staff account", id)
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
	if p.Active != nil {
		a.Active = *p.Active
	}
	m.staff[id] = a
	return a, nil
}

func (m *memRecords) DeleteStaff(_ context.Context, id string) (model.StaffAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.staff[id]
	if !ok {
		return model.StaffAccount{}, missing("staff account", id)
	}
	delete(m.staff, id)
	return a, nil
}

func (m *memRecords) RecentReconciliation(context.Context, bool, int) ([]model.ReconciliationItem, error) {
	return nil, nil
}

func (a *fakeAudit) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, nil
}

// fakeProvisioner hands out sequential user ids and remembers deletions.
type fakeProvisioner struct {
	createErr error
	created   []string
	deleted   []string
}

func (p *fakeProvisioner) Create(_ context.Context, _, _ string, _ model.StaffRole) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	id := fmt.Sprintf("idp-%d", len(p.created)+1)
	p.created = append(p.created, id)
	return id, nil
}

func (p *fakeProvisioner) Delete(_ context.Context, userID string) error {
	p.deleted = append(p.deleted, userID)
	return nil
}

type countingDirectory struct {
	Directory
	invalidated int
}

func (d *countingDirectory) Invalidate(context.Context) { d.invalidated++ }

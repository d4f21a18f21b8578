// Package directory serves the patient-facing doctor and slot listings.
package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/availability"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"go.uber.org/zap"
)

const doctorsKey = "doctors"

// Source is the read side of the record store.
type Source interface {
	// ListDoctors returns active doctors ordered by name.
	ListDoctors(ctx context.Context) ([]model.Doctor, error)
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	// ListOpenSlots returns a doctor's available slots dated fromDate or later.
	ListOpenSlots(ctx context.Context, doctorID, fromDate string) ([]model.TimeSlot, error)
}

type Service struct {
	src    Source
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
	opts   booking.Options
}

type Config struct {
	Cache    Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
	Options  booking.Options
}

func NewService(src Source, cfg Config) *Service {
	if cfg.Cache == nil {
		cfg.Cache = NopCache{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Options.Location == nil {
		cfg.Options.Location = time.UTC
	}
	if cfg.Options.Now == nil {
		cfg.Options.Now = time.Now
	}
	return &Service{src: src, cache: cfg.Cache, ttl: cfg.CacheTTL, logger: cfg.Logger, opts: cfg.Options}
}

// Doctors lists active doctors. Cache failures fall through to the store.
func (s *Service) Doctors(ctx context.Context) ([]model.Doctor, error) {
	var cached []model.Doctor
	hit, err := s.cache.Get(ctx, doctorsKey, &cached)
	if err != nil {
		s.logger.Warn("directory cache read failed", zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	doctors, err := s.src.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	if doctors == nil {
		doctors = []model.Doctor{}
	}
	if err := s.cache.Set(ctx, doctorsKey, doctors, s.ttl); err != nil {
		s.logger.Warn("directory cache write failed", zap.Error(err))
	}
	return doctors, nil
}

// Doctor returns one active doctor. Archived doctors are reported missing.
func (s *Service) Doctor(ctx context.Context, id string) (model.Doctor, error) {
	d, err := s.src.GetDoctor(ctx, id)
	if err != nil {
		return model.Doctor{}, err
	}
	if d.ArchivedAt != nil {
		return model.Doctor{}, fmt.Errorf("doctor %s: %w", id, booking.ErrNotFound)
	}
	return d, nil
}

// Slots returns the doctor's bookable slots that have not started, ordered
// by date then start time.
func (s *Service) Slots(ctx context.Context, doctorID string) ([]model.TimeSlot, error) {
	if _, err := s.Doctor(ctx, doctorID); err != nil {
		return nil, err
	}
	now := s.opts.Now()
	today := now.In(s.opts.Location).Format(model.DateLayout)
	slots, err := s.src.ListOpenSlots(ctx, doctorID, today)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return availability.Upcoming(slots, now, s.opts.Location), nil
}

// Schedule is Slots grouped by date for the date picker.
func (s *Service) Schedule(ctx context.Context, doctorID string) ([]availability.Day, error) {
	slots, err := s.Slots(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	days := availability.GroupByDate(slots)
	if days == nil {
		days = []availability.Day{}
	}
	return days, nil
}

// Invalidate drops cached listings after a doctor write.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, doctorsKey); err != nil {
		s.logger.Warn("directory cache invalidate failed", zap.Error(err))
	}
}

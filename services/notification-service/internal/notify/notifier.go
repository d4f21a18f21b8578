// Package notify turns booking events into patient emails.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/healthcarepro/clinicbook/libs/kafkax"
	"github.com/healthcarepro/clinicbook/services/notification-service/internal/email"
	"github.com/healthcarepro/clinicbook/services/notification-service/internal/storage"
	"github.com/healthcarepro/clinicbook/services/notification-service/internal/templates"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
)

// Topics lists every event type the notifier handles.
var Topics = []string{EventAppointmentBooked, EventAppointmentConfirmed}

var templateFor = map[string]string{
	EventAppointmentBooked:    templates.AppointmentBooked,
	EventAppointmentConfirmed: templates.AppointmentConfirmed,
}

var errInvalidPayload = errors.New("invalid appointment payload")

// AppointmentEvent mirrors the payload booking-service writes to its outbox.
type AppointmentEvent struct {
	AppointmentID   string `json:"appointment_id"`
	Status          string `json:"status"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	DoctorName      string `json:"doctor_name"`
	DoctorSpecialty string `json:"doctor_specialty"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
}

func (e AppointmentEvent) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"appointment_id": e.AppointmentID,
		"email":          e.Email,
		"doctor_name":    e.DoctorName,
		"date":           e.Date,
		"start_time":     e.StartTime,
		"end_time":       e.EndTime,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", errInvalidPayload, strings.Join(missing, ", "))
	}
	return nil
}

// Recorder persists delivery attempts.
type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Notifier struct {
	sender     email.Sender
	clinicName string
	logger     *zap.Logger
}

func New(sender email.Sender, clinicName string, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, clinicName: clinicName, logger: logger}
}

// Handle renders and sends the email for one message and records the attempt
// in records. Send failures are recorded as failed notifications, not
// returned; only a failure to record is an error.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message, records Recorder) error {
	eventType := kafkax.ExtractEventMeta(msg).EventType
	name, ok := templateFor[eventType]
	if !ok {
		n.logger.Warn("unhandled event type", zap.String("event_type", eventType))
		return nil
	}

	var evt AppointmentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		n.logger.Error("undecodable appointment payload", zap.String("event_type", eventType), zap.Error(err))
		return nil
	}
	if err := evt.validate(); err != nil {
		n.logger.Error("rejected appointment payload", zap.String("event_type", eventType), zap.Error(err))
		return nil
	}

	record := storage.Notification{
		AppointmentID: evt.AppointmentID,
		Template:      name,
		Recipient:     evt.Email,
		Payload:       evt,
		Status:        storage.StatusSent,
	}

	rendered, err := templates.Render(name, templates.Data{
		ClinicName:      n.clinicName,
		PatientName:     strings.TrimSpace(evt.FirstName + " " + evt.LastName),
		DoctorName:      evt.DoctorName,
		DoctorSpecialty: evt.DoctorSpecialty,
		Date:            evt.Date,
		StartTime:       evt.StartTime,
		EndTime:         evt.EndTime,
	})
	if err == nil {
		err = n.sender.Send(ctx, evt.Email, rendered.Subject, rendered.Body)
	}
	if err != nil {
		record.Status = storage.StatusFailed
		record.ErrorReason = err.Error()
		n.logger.Warn("notification not delivered",
			zap.String("appointment_id", evt.AppointmentID),
			zap.String("template", name),
			zap.Error(err),
		)
	}

	if err := records.Insert(ctx, record); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	n.logger.Info("notification processed",
		zap.String("appointment_id", evt.AppointmentID),
		zap.String("template", name),
		zap.String("status", record.Status),
	)
	return nil
}

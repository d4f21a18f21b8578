// Package templates renders the patient-facing appointment emails.
package templates

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
)

const (
	AppointmentBooked    = "appointment_booked"
	AppointmentConfirmed = "appointment_confirmed"
)

var ErrUnknownTemplate = errors.New("unknown template")

// Data is what every template can reference.
type Data struct {
	ClinicName      string
	PatientName     string
	DoctorName      string
	DoctorSpecialty string
	Date            string
	StartTime       string
	EndTime         string
}

type Message struct {
	Subject string
	Body    string
}

type entry struct {
	subject *template.Template
	body    *template.Template
}

var funcs = template.FuncMap{
	"longDate": longDate,
}

var registry = map[string]entry{
	AppointmentBooked: mustEntry(AppointmentBooked,
		`{{.ClinicName}}: appointment request received`,
		`Hello {{.PatientName}},

We received your appointment request with {{.DoctorName}} ({{.DoctorSpecialty}})
on {{longDate .Date}} from {{.StartTime}} to {{.EndTime}}.

The clinic will review it shortly and you will get another email once it is confirmed.

{{.ClinicName}}
`),
	AppointmentConfirmed: mustEntry(AppointmentConfirmed,
		`{{.ClinicName}}: your appointment is confirmed`,
		`Hello {{.PatientName}},

Your appointment with {{.DoctorName}} ({{.DoctorSpecialty}}) is confirmed for
{{longDate .Date}} from {{.StartTime}} to {{.EndTime}}.

Please arrive ten minutes early. If you cannot make it, contact the clinic so the
time can be offered to someone else.

{{.ClinicName}}
`),
}

func mustEntry(name, subject, body string) entry {
	return entry{
		subject: template.Must(template.New(name + ".subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New(name + ".body").Funcs(funcs).Parse(body)),
	}
}

// Render executes the named template. Missing fields render empty; callers
// validate their input first.
func Render(name string, data Data) (Message, error) {
	e, ok := registry[name]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var subject, body strings.Builder
	if err := e.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := e.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", name, err)
	}
	return Message{Subject: strings.TrimSpace(subject.String()), Body: body.String()}, nil
}

// longDate turns 2024-06-01 into "Saturday, June 1, 2024". Anything it
// cannot parse is returned as is.
func longDate(s string) string {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return s
	}
	return d.Format("Monday, January 2, 2006")
}

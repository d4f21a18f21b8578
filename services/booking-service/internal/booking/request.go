package booking

import (
	"net/mail"
	"slices"
	"strings"
	"unicode"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
)

// BookingRequest is what a patient submits for a selected slot.
type BookingRequest struct {
	SlotID         string `json:"time_slot_id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone_number"`
	EducationLevel string `json:"education_level"`
}

func (r *BookingRequest) normalize() {
	r.SlotID = strings.TrimSpace(r.SlotID)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.EducationLevel = strings.TrimSpace(r.EducationLevel)
}

// Validate checks every field and reports all problems at once.
func (r BookingRequest) Validate() error {
	verr := &ValidationError{}
	required := []struct{ field, value string }{
		{"time_slot_id", r.SlotID},
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"email", r.Email},
		{"phone_number", r.Phone},
		{"education_level", r.EducationLevel},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			verr.add(f.field, "is required")
		}
	}

	if r.Email != "" {
		addr, err := mail.ParseAddress(r.Email)
		if err != nil || addr.Address != r.Email || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
			verr.add("email", "must be a valid email address")
		}
	}
	if r.Phone != "" && !validPhone(r.Phone) {
		verr.add("phone_number", "must contain 7 to 15 digits")
	}
	if r.EducationLevel != "" && !slices.Contains(model.EducationLevels, r.EducationLevel) {
		verr.add("education_level", "must be one of: "+strings.Join(model.EducationLevels, ", "))
	}
	return verr.orNil()
}

// validPhone accepts digits with the usual separators and an optional leading +.
func validPhone(p string) bool {
	digits := 0
	for i, c := range p {
		switch {
		case unicode.IsDigit(c):
			digits++
		case c == '+' && i == 0:
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '.':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

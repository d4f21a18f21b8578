package booking

import (
	"context"
	"errors"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
)

// StaffLookup resolves a staff account by identity-provider user id.
type StaffLookup interface {
	GetStaffByUserID(ctx context.Context, userID string) (model.StaffAccount, error)
}

// StaffAuthorizer allows any active staff or admin account to change any
// appointment. The role in the account record wins over the role the caller
// claims, so deactivation and demotion take effect immediately.
type StaffAuthorizer struct {
	Staff StaffLookup
}

func (a StaffAuthorizer) CanTransition(ctx context.Context, caller Caller, _ model.Appointment) (bool, error) {
	if caller.UserID == "" {
		return false, nil
	}
	acct, err := a.Staff.GetStaffByUserID(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("get staff account", err)
	}
	return acct.Active && acct.Role.Valid(), nil
}

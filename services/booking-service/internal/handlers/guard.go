package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/healthcarepro/clinicbook/libs/httpx"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/booking"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"go.uber.org/zap"
)

// Headers set by the gateway after it verified the caller's token.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-Role"
)

type ctxKey int

const ctxKeyStaff ctxKey = iota

// Guard admits requests from active staff accounts. The account record is
// authoritative; the role header only tells which account to look up.
type Guard struct {
	Staff  booking.StaffLookup
	Logger *zap.Logger
}

func (g Guard) Require(roles ...model.StaffRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing caller identity")
				return
			}
			acct, err := g.Staff.GetStaffByUserID(r.Context(), userID)
			if errors.Is(err, booking.ErrNotFound) {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "no staff account for this user")
				return
			}
			if err != nil {
				writeError(w, r, g.logger(), err)
				return
			}
			if !acct.Active || !slices.Contains(roles, acct.Role) {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "your account may not perform this action")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyStaff, acct)))
		})
	}
}

func (g Guard) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

func staffFromContext(ctx context.Context) (model.StaffAccount, bool) {
	acct, ok := ctx.Value(ctxKeyStaff).(model.StaffAccount)
	return acct, ok
}

// callerFrom builds the transition caller from the guarded request.
func callerFrom(r *http.Request) booking.Caller {
	if acct, ok := staffFromContext(r.Context()); ok {
		return booking.Caller{UserID: acct.UserID, Role: acct.Role}
	}
	return booking.Caller{
		UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:   model.StaffRole(strings.TrimSpace(r.Header.Get(HeaderRole))),
	}
}

func actorID(r *http.Request) string {
	return callerFrom(r).UserID
}

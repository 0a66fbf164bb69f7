package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse"
)

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, gatehouse.ErrDuplicateMembership) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, gatehouse.ErrUnauthenticated) || errors.Is(err, gatehouse.ErrSessionClosed) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, gatehouse.ErrNotAdmin) || errors.Is(err, gatehouse.ErrAccessDenied) {
		return forge.Forbidden(err.Error())
	}
	if errors.Is(err, gatehouse.ErrNotImpersonating) {
		return forge.BadRequest(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, gatehouse.ErrMembershipNotFound) ||
		errors.Is(err, gatehouse.ErrGrantNotFound) ||
		errors.Is(err, gatehouse.ErrPlanNotFound) ||
		errors.Is(err, gatehouse.ErrSubscriptionNotFound) ||
		errors.Is(err, gatehouse.ErrAuditEntryNotFound)
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

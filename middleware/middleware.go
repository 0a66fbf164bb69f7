// Package middleware provides HTTP enforcement middleware for gatehouse.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/permission"
)

// AccessModeHeader is set on responses that were allowed in degraded
// mode. Clients use it to disable mutating UI for the capability.
const AccessModeHeader = "X-Access-Mode"

// Require enforces an access request for every matched route. The
// caller is resolved from the request context; callers without a bound
// session are denied. A degraded decision lets the request through with
// AccessModeHeader set to "read-only"; a pending decision answers 503
// with Retry-After so clients retry instead of treating an unresolved
// identity as a deny.
func Require(eng *gatehouse.Engine, req gatehouse.AccessRequest) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			sess, ok := resolveSession(eng, ctx)
			if !ok {
				return denyResponse(ctx, gatehouse.AccessDecision{
					Outcome: gatehouse.OutcomeDeny,
					Code:    gatehouse.CodeDenyUnverified,
					Reason:  "no authenticated session",
				})
			}

			dec := eng.Check(ctx.Context(), sess, req)
			switch dec.Outcome {
			case gatehouse.OutcomeAllow:
				return next(ctx)
			case gatehouse.OutcomeDegraded:
				ctx.SetHeader(AccessModeHeader, "read-only")
				return next(ctx)
			case gatehouse.OutcomePending:
				return pendingResponse(ctx)
			default:
				return denyResponse(ctx, dec)
			}
		}
	}
}

// RequireRole enforces an effective role class.
func RequireRole(eng *gatehouse.Engine, role gatehouse.RoleClass) forge.Middleware {
	return Require(eng, gatehouse.AccessRequest{Role: role})
}

// RequirePermission enforces a sub-user permission grant. Identities
// that are not sub-users pass unconditionally.
func RequirePermission(eng *gatehouse.Engine, key permission.Key) forge.Middleware {
	return Require(eng, gatehouse.AccessRequest{Permission: key})
}

// RequireFeature enforces a plan entitlement. Set allowDegraded to let
// a read-only entitlement reach the handler in degraded mode instead
// of being denied.
func RequireFeature(eng *gatehouse.Engine, feature entitlement.Feature, allowDegraded bool) forge.Middleware {
	return Require(eng, gatehouse.AccessRequest{Feature: feature, AllowDegraded: allowDegraded})
}

// resolveSession looks up the caller's bound session.
func resolveSession(eng *gatehouse.Engine, ctx forge.Context) (*gatehouse.Session, bool) {
	userID := gatehouse.ActorFromContext(ctx.Context())
	if userID == "" {
		return nil, false
	}
	return eng.Sessions().Get(userID)
}

func pendingResponse(ctx forge.Context) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.SetHeader("Retry-After", "1")
	ctx.Response().WriteHeader(http.StatusServiceUnavailable)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{
		"error": "access state is still resolving",
		"code":  string(gatehouse.CodePending),
	})
}

func denyResponse(ctx forge.Context, dec gatehouse.AccessDecision) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(http.StatusForbidden)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{
		"error": "access denied",
		"code":  string(dec.Code),
	})
}

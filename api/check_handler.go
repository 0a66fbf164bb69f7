package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/gatehouse"
	"github.com/xraph/gatehouse/entitlement"
	"github.com/xraph/gatehouse/permission"
)

func (a *API) registerCheckRoutes(router forge.Router) error {
	g := router.Group("/v1/access", forge.WithGroupTags("access"))

	if err := g.POST("/check", a.check,
		forge.WithSummary("Access check"),
		forge.WithDescription("Evaluates whether the user's session permits the capability."),
		forge.WithOperationID("accessCheck"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Decision", DecisionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/enforce", a.enforce,
		forge.WithSummary("Enforce access"),
		forge.WithDescription("Returns 200 if permitted, 403 if denied, 503 while unresolved."),
		forge.WithOperationID("accessEnforce"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Permitted", DecisionResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.POST("/batch-check", a.batchCheck,
		forge.WithSummary("Batch access check"),
		forge.WithDescription("Evaluates multiple access checks in one request."),
		forge.WithOperationID("accessBatchCheck"),
		forge.WithRequestSchema(BatchCheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Batch results", BatchCheckResponse{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) check(ctx forge.Context, req *CheckRequest) (*DecisionResponse, error) {
	sess, accessReq, err := a.resolveCheck(req)
	if err != nil {
		return nil, err
	}

	dec := a.eng.Check(ctx.Context(), sess, accessReq)
	resp := toDecisionResponse(dec)
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) enforce(ctx forge.Context, req *CheckRequest) (*DecisionResponse, error) {
	sess, accessReq, err := a.resolveCheck(req)
	if err != nil {
		return nil, err
	}

	dec := a.eng.Check(ctx.Context(), sess, accessReq)
	resp := toDecisionResponse(dec)
	switch dec.Outcome {
	case gatehouse.OutcomeAllow, gatehouse.OutcomeDegraded:
		return resp, ctx.JSON(http.StatusOK, resp)
	case gatehouse.OutcomePending:
		ctx.SetHeader("Retry-After", "1")
		return resp, ctx.JSON(http.StatusServiceUnavailable, resp)
	default:
		return resp, ctx.JSON(http.StatusForbidden, resp)
	}
}

func (a *API) batchCheck(ctx forge.Context, req *BatchCheckRequest) (*BatchCheckResponse, error) {
	if len(req.Checks) == 0 {
		return nil, forge.BadRequest("checks cannot be empty")
	}

	results := make([]DecisionResponse, len(req.Checks))
	for i := range req.Checks {
		sess, accessReq, err := a.resolveCheck(&req.Checks[i])
		if err != nil {
			return nil, err
		}
		results[i] = *toDecisionResponse(a.eng.Check(ctx.Context(), sess, accessReq))
	}

	resp := &BatchCheckResponse{Results: results}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) resolveCheck(req *CheckRequest) (*gatehouse.Session, gatehouse.AccessRequest, error) {
	var zero gatehouse.AccessRequest
	if req.UserID == "" {
		return nil, zero, forge.BadRequest("user_id is required")
	}
	accessReq, err := toAccessRequest(req)
	if err != nil {
		return nil, zero, forge.BadRequest(err.Error())
	}
	sess, ok := a.eng.Sessions().Get(req.UserID)
	if !ok {
		return nil, zero, forge.NotFound(fmt.Sprintf("no session bound for user %s", req.UserID))
	}
	return sess, accessReq, nil
}

func toAccessRequest(r *CheckRequest) (gatehouse.AccessRequest, error) {
	req := gatehouse.AccessRequest{
		ReadOnlyOK:    r.ReadOnlyOK,
		AllowDegraded: r.AllowDegraded,
	}
	if r.Role != "" {
		rc := gatehouse.RoleClass(r.Role)
		if err := rc.Validate(); err != nil {
			return req, err
		}
		req.Role = rc
	}
	if r.Permission != "" {
		key := permission.Key(r.Permission)
		if err := key.Validate(); err != nil {
			return req, err
		}
		req.Permission = key
	}
	if r.Feature != "" {
		f := entitlement.Feature(r.Feature)
		if err := f.Validate(); err != nil {
			return req, err
		}
		req.Feature = f
	}
	return req, nil
}

func toDecisionResponse(d gatehouse.AccessDecision) *DecisionResponse {
	return &DecisionResponse{
		Outcome:    string(d.Outcome),
		Code:       string(d.Code),
		Reason:     d.Reason,
		EvalTimeNs: d.EvalTimeNs,
	}
}

package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/escalation"
	"github.com/ymahak/cust/internal/server/middleware"
)

type ListPendingOutput struct {
	Body struct {
		Escalations []*domain.Escalation `json:"escalations"`
		Count       int                  `json:"count"`
	}
}

type EscalationIDInput struct {
	ID uuid.UUID `path:"id" doc:"Escalation ID"`
}

type EscalationDetailOutput struct {
	Body struct {
		Escalation *domain.Escalation `json:"escalation"`
		Feedback   []*domain.Feedback `json:"feedback"`
	}
}

type ApproveInput struct {
	ID   uuid.UUID `path:"id" doc:"Escalation ID"`
	Body struct {
		Response string `json:"response,omitempty" doc:"Reply sent to the customer; empty keeps the drafted reply"`
		Notes    string `json:"notes,omitempty" doc:"Reviewer notes"`
	}
}

type RejectInput struct {
	ID   uuid.UUID `path:"id" doc:"Escalation ID"`
	Body struct {
		Response string `json:"response" minLength:"1" doc:"Replacement reply"`
		Notes    string `json:"notes,omitempty" doc:"Why the drafted reply was rejected"`
	}
}

type EditInput struct {
	ID   uuid.UUID `path:"id" doc:"Escalation ID"`
	Body struct {
		OriginalResponse string `json:"original_response" minLength:"1" doc:"Drafted reply being edited"`
		EditedResponse   string `json:"edited_response" minLength:"1" doc:"Edited reply"`
		Reason           string `json:"reason" doc:"Why the reply was edited"`
	}
}

type ResolutionOutput struct {
	Body struct {
		Status       domain.EscalationStatus `json:"status"`
		Message      string                  `json:"message"`
		EscalationID uuid.UUID               `json:"escalation_id"`
		Escalation   *domain.Escalation      `json:"escalation"`
	}
}

type HITLStatsOutput struct {
	Body struct {
		PendingCount  int64 `json:"pending_count"`
		Approved      int64 `json:"approved"`
		Rejected      int64 `json:"rejected"`
		Edited        int64 `json:"edited"`
		ReviewedTotal int64 `json:"reviewed_total"`
	}
}

// RegisterHITLRoutes registers the review queue. Must be mounted behind
// middleware.Auth and middleware.RequireReviewer.
func RegisterHITLRoutes(api huma.API, svc EscalationService) {
	huma.Register(api, huma.Operation{
		OperationID: "list-pending-escalations",
		Method:      http.MethodGet,
		Path:        "/hitl/escalations/pending",
		Summary:     "List pending escalations, oldest first",
		Tags:        []string{"HITL"},
	}, func(ctx context.Context, _ *struct{}) (*ListPendingOutput, error) {
		list, err := svc.ListPending(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list escalations", err)
		}
		if list == nil {
			list = []*domain.Escalation{}
		}

		out := &ListPendingOutput{}
		out.Body.Escalations = list
		out.Body.Count = len(list)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-escalation",
		Method:      http.MethodGet,
		Path:        "/hitl/escalations/{id}",
		Summary:     "Get an escalation and its review feedback",
		Tags:        []string{"HITL"},
	}, func(ctx context.Context, input *EscalationIDInput) (*EscalationDetailOutput, error) {
		e, err := svc.Get(ctx, input.ID)
		if err != nil {
			return nil, escalationError(err, "failed to get escalation")
		}

		fb, err := svc.Feedback(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load feedback", err)
		}
		if fb == nil {
			fb = []*domain.Feedback{}
		}

		out := &EscalationDetailOutput{}
		out.Body.Escalation = e
		out.Body.Feedback = fb
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-escalation",
		Method:      http.MethodPost,
		Path:        "/hitl/escalations/{id}/approve",
		Summary:     "Approve a pending escalation",
		Tags:        []string{"HITL"},
	}, func(ctx context.Context, input *ApproveInput) (*ResolutionOutput, error) {
		e, err := svc.Approve(ctx, input.ID, reviewer(ctx), input.Body.Response, input.Body.Notes)
		if err != nil {
			return nil, escalationError(err, "failed to approve escalation")
		}
		return resolution(e, "Response approved and sent to user"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-escalation",
		Method:      http.MethodPost,
		Path:        "/hitl/escalations/{id}/reject",
		Summary:     "Reject the drafted reply and supply a replacement",
		Tags:        []string{"HITL"},
	}, func(ctx context.Context, input *RejectInput) (*ResolutionOutput, error) {
		e, err := svc.Reject(ctx, input.ID, reviewer(ctx), input.Body.Response, input.Body.Notes)
		if err != nil {
			return nil, escalationError(err, "failed to reject escalation")
		}
		return resolution(e, "Escalation rejected with new response"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-escalation",
		Method:      http.MethodPost,
		Path:        "/hitl/escalations/{id}/edit",
		Summary:     "Edit the drafted reply",
		Tags:        []string{"HITL"},
	}, func(ctx context.Context, input *EditInput) (*ResolutionOutput, error) {
		e, err := svc.Edit(ctx, input.ID, reviewer(ctx), input.Body.OriginalResponse, input.Body.EditedResponse, input.Body.Reason)
		if err != nil {
			return nil, escalationError(err, "failed to edit escalation")
		}
		return resolution(e, "Response edited successfully"), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "hitl-stats",
		Method:      http.MethodGet,
		Path:        "/hitl/stats",
		Summary:     "Escalation counts by status",
		Tags:        []string{"HITL"},
	}, func(ctx context.Context, _ *struct{}) (*HITLStatsOutput, error) {
		c, err := svc.Stats(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count escalations", err)
		}

		out := &HITLStatsOutput{}
		out.Body.PendingCount = c.Pending
		out.Body.Approved = c.Approved
		out.Body.Rejected = c.Rejected
		out.Body.Edited = c.Edited
		out.Body.ReviewedTotal = c.Approved + c.Rejected + c.Edited
		return out, nil
	})
}

func reviewer(ctx context.Context) string {
	name, _ := middleware.UsernameFromContext(ctx)
	return name
}

func resolution(e *domain.Escalation, msg string) *ResolutionOutput {
	out := &ResolutionOutput{}
	out.Body.Status = e.Status
	out.Body.Message = msg
	out.Body.EscalationID = e.ID
	out.Body.Escalation = e
	return out
}

func escalationError(err error, msg string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return huma.Error404NotFound("escalation not found")
	case errors.Is(err, domain.ErrAlreadyResolved):
		return huma.Error409Conflict("escalation already resolved")
	case errors.Is(err, escalation.ErrOriginalRequired), errors.Is(err, escalation.ErrInvalidDisposition):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

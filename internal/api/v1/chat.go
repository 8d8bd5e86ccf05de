package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/pipeline"
	"github.com/ymahak/cust/internal/server/middleware"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type ChatInput struct {
	Body struct {
		Message string `json:"message" minLength:"1" doc:"Customer message"`
	}
}

type ChatOutput struct {
	Body *pipeline.Result
}

type HistoryInput struct {
	Limit int `query:"limit" minimum:"0" maximum:"100" doc:"Number of messages (default 20)"`
}

type HistoryOutput struct {
	Body struct {
		History []*domain.Message `json:"history"`
	}
}

// RegisterChatRoutes registers the public chat endpoint. Requests carrying a
// valid token are attributed to the user; others are anonymous.
func RegisterChatRoutes(api huma.API, chat ChatService) {
	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/chat",
		Summary:     "Send a message to the support assistant",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *ChatInput) (*ChatOutput, error) {
		caller, _ := middleware.UsernameFromContext(ctx)

		res, err := chat.Handle(ctx, pipeline.Request{Text: input.Body.Message, CallerID: caller})
		if err != nil {
			var rej *pipeline.RejectionError
			if errors.As(err, &rej) {
				return nil, huma.Error400BadRequest("request rejected", &huma.ErrorDetail{
					Location: "body.message",
					Message:  rej.Reason,
					Value:    string(rej.TraceID),
				})
			}
			return nil, huma.Error500InternalServerError("chat failed", err)
		}

		return &ChatOutput{Body: res}, nil
	})
}

// RegisterHistoryRoutes registers the caller's conversation history. Must be
// mounted behind middleware.Auth.
func RegisterHistoryRoutes(api huma.API, messages domain.MessageRepository) {
	huma.Register(api, huma.Operation{
		OperationID: "get-history",
		Method:      http.MethodGet,
		Path:        "/history",
		Summary:     "List the caller's recent messages, oldest first",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
		caller, ok := middleware.UsernameFromContext(ctx)
		if !ok || caller == "" {
			return nil, huma.Error401Unauthorized("authentication required")
		}

		limit := input.Limit
		if limit == 0 {
			limit = defaultHistoryLimit
		}
		limit = min(limit, maxHistoryLimit)

		msgs, err := messages.ListRecent(ctx, caller, limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load history", err)
		}

		out := &HistoryOutput{}
		out.Body.History = make([]*domain.Message, len(msgs))
		for i, m := range msgs {
			out.Body.History[len(msgs)-1-i] = m
		}
		return out, nil
	})
}

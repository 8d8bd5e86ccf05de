package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/ymahak/cust/internal/auth"
	"github.com/ymahak/cust/internal/domain"
	"github.com/ymahak/cust/internal/server/middleware"
)

type SignupInput struct {
	Body struct {
		Username string `json:"username" minLength:"3" maxLength:"64" doc:"Login name"`
		Password string `json:"password" minLength:"8" maxLength:"72" doc:"Password"` //nolint:gosec // G117: login credential DTO
		Role     string `json:"role,omitempty" enum:"user,agent,admin" doc:"Requested role (default user)"`
	}
}

type SignupOutput struct {
	Body struct {
		Message  string `json:"message"`
		Username string `json:"username"`
		Role     string `json:"role"`
	}
}

type LoginInput struct {
	Body struct {
		Username string `json:"username" minLength:"1" maxLength:"64" doc:"Login name"`
		Password string `json:"password" minLength:"1" maxLength:"72" doc:"Password"` //nolint:gosec // G117: login credential DTO
	}
}

type LoginOutput struct {
	Body *auth.Tokens
}

type RefreshInput struct {
	Body struct {
		RefreshToken string `json:"refresh_token" minLength:"1" doc:"Refresh token"` //nolint:gosec // G117: token refresh DTO
	}
}

type RefreshOutput struct {
	Body struct {
		AccessToken string `json:"access_token"` //nolint:gosec // G117: auth response DTO
		TokenType   string `json:"token_type"`
	}
}

type MeOutput struct {
	Body struct {
		ID        uuid.UUID `json:"id"`
		Username  string    `json:"username"`
		Role      string    `json:"role"`
		CreatedAt time.Time `json:"created_at"`
	}
}

// RegisterAuthRoutes registers signup, login and refresh. Mount behind
// middleware.OptionalAuth: only an authenticated admin may create agent or
// admin accounts.
func RegisterAuthRoutes(api huma.API, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/auth/signup",
		Summary:       "Create an account",
		Tags:          []string{"Auth"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *SignupInput) (*SignupOutput, error) {
		role := input.Body.Role
		if role != "" && role != domain.RoleUser {
			if callerRole, _ := middleware.RoleFromContext(ctx); callerRole != domain.RoleAdmin {
				return nil, huma.Error403Forbidden("only admins can create " + role + " accounts")
			}
		}

		user, err := authSvc.Signup(ctx, input.Body.Username, input.Body.Password, role)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUserAlreadyExists):
				return nil, huma.Error409Conflict("user already exists")
			case errors.Is(err, auth.ErrInvalidRole):
				return nil, huma.Error400BadRequest("invalid role")
			}
			return nil, huma.Error500InternalServerError("failed to create user", err)
		}

		out := &SignupOutput{}
		out.Body.Message = "User created successfully"
		out.Body.Username = user.Username
		out.Body.Role = user.Role
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login with username and password",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
		tokens, err := authSvc.Login(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return nil, huma.Error401Unauthorized("invalid credentials")
			}
			return nil, huma.Error500InternalServerError("login failed", err)
		}
		return &LoginOutput{Body: tokens}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/auth/refresh",
		Summary:     "Refresh access token",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RefreshInput) (*RefreshOutput, error) {
		accessToken, err := authSvc.RefreshToken(ctx, input.Body.RefreshToken)
		if err != nil {
			return nil, huma.Error401Unauthorized("invalid or expired refresh token")
		}

		out := &RefreshOutput{}
		out.Body.AccessToken = accessToken
		out.Body.TokenType = "bearer"
		return out, nil
	})
}

// RegisterMeRoutes registers the current-user endpoint. Must be mounted behind
// middleware.Auth.
func RegisterMeRoutes(api huma.API, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current user",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, _ *struct{}) (*MeOutput, error) {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			return nil, huma.Error401Unauthorized("authentication required")
		}

		user, err := authSvc.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				return nil, huma.Error401Unauthorized("user no longer exists")
			}
			return nil, huma.Error500InternalServerError("failed to load user", err)
		}

		out := &MeOutput{}
		out.Body.ID = user.ID
		out.Body.Username = user.Username
		out.Body.Role = user.Role
		out.Body.CreatedAt = user.CreatedAt
		return out, nil
	})
}

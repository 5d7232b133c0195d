package httpapi

import (
	"errors"
	"net/http"

	"nexerp.io/internal/audit"
	"nexerp.io/internal/auth"
	"nexerp.io/internal/obs"
)

type registerRequest struct {
	CompanyName    string `json:"company_name"`
	Slug           string `json:"slug"`
	AdminEmail     string `json:"admin_email"`
	AdminPassword  string `json:"admin_password"`
	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	err := a.auth.RegisterTenant(r.Context(), auth.RegisterTenantInput{
		CompanyName:    req.CompanyName,
		Slug:           req.Slug,
		AdminEmail:     req.AdminEmail,
		AdminPassword:  req.AdminPassword,
		AdminFirstName: req.AdminFirstName,
		AdminLastName:  req.AdminLastName,
	})
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	audit.LogEvent(audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context())),
		"tenant_registered", map[string]any{"slug": req.Slug})
	writeMessage(w, r, http.StatusCreated, "tenant registered")
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.CountLogin("failure")
		a.handleAuthError(w, r, err)
		return
	}

	obs.CountLogin("success")
	ctx := auth.ContextWithSecurity(r.Context(), auth.SecurityContext{
		UserID:   result.User.ID,
		TenantID: result.Tenant.ID,
		Email:    result.User.Email,
	})
	audit.LogEvent(audit.WithRequestID(ctx, RequestIDFromContext(r.Context())),
		"user_logged_in", nil)
	writeData(w, r, http.StatusOK, result)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, result)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sec, ok := auth.SecurityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.auth.Logout(r.Context(), sec.UserID); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	audit.LogEvent(audit.WithRequestID(r.Context(), RequestIDFromContext(r.Context())),
		"user_logged_out", nil)
	writeMessage(w, r, http.StatusOK, "logged out")
}

// handleAuthError maps the domain error taxonomy onto status codes.
// Anything unrecognised is a 500 with a generic message; internals never
// reach the client.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusUnprocessableEntity, verr.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "token expired")
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrUserInactive), errors.Is(err, auth.ErrTenantInactive):
		writeError(w, r, http.StatusUnauthorized, "account is inactive")
	case errors.Is(err, auth.ErrSlugTaken):
		writeError(w, r, http.StatusConflict, "slug is already taken")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "email is already registered")
	default:
		obs.LogRequest(map[string]any{
			"level":      "error",
			"msg":        "auth request failed",
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

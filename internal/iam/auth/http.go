// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/constants"
	"github.com/propelacrm/propela/internal/platform/middleware"
	requestutil "github.com/propelacrm/propela/internal/platform/request"
	"github.com/propelacrm/propela/internal/platform/respond"
	"github.com/propelacrm/propela/internal/platform/sec"
	"github.com/propelacrm/propela/internal/platform/validate"
	"github.com/propelacrm/propela/pkg/pagination"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages the account lifecycle entry points (registration,
// login, verification), session rotation, and the caller's own session and
// audit-trail views.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /register : Creates a brokerage and its founding account.
//   - POST /login    : Authenticates and returns a JWT.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/verify-email", handler.verifyEmail)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Post("/change-password", handler.changePassword)
		r.Get("/sessions", handler.listSessions)
		r.Delete("/sessions", handler.revokeOtherSessions)
		r.Delete("/sessions/{sessionID}", handler.revokeSession)
		r.Get("/security-events", handler.listSecurityEvents)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	BrokerageName string `json:"brokerage_name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	FullName      string `json:"full_name"`
}

type loginRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	SecondFactorCode string `json:"second_factor_code"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

/*
Register creates a brokerage together with its founding account.

POST /api/v1/auth/register

Description: Validates input, provisions the tenant, and persists the
founding user in pending state. The account stays locked out of login
until its email is verified.

Request:
  - Body: registerRequest (BrokerageName, Email, Password, FullName)

Response:
  - 201: User: Created account profile
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Email already registered
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldBrokerageName, input.BrokerageName).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8).
		Required(FieldFullName, input.FullName)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		BrokerageName: input.BrokerageName,
		Email:         input.Email,
		Password:      input.Password,
		FullName:      input.FullName,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials, generates JWT access tokens, and injects
a secure refresh token cookie into the response.

Request:
  - Body: loginRequest (Email, Password, SecondFactorCode)

Response:
  - 200: Session: Access token and User profile
  - 401: ErrUnauthorized: Invalid credentials or account locked
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Email:            input.Email,
		Password:         input.Password,
		SecondFactorCode: input.SecondFactorCode,
		Device:           deviceFromRequest(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   constants.AccessTokenTTL / time.Second,
		FieldUser:        session.User,
	})
}

/*
Refresh issues a new access token using a valid refresh token.

POST /api/v1/auth/refresh

Description: Rotates the session by validating the refresh token cookie
and issuing a fresh access token and an updated refresh token.

Response:
  - 200: RefreshResponse: New access token credentials
  - 401: ErrUnauthorized: Missing or invalid refresh token
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	session, err := handler.authService.Refresh(
		request.Context(),
		cookie.Value,
		deviceFromRequest(request),
	)

	if err != nil {
		clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	setRefreshCookie(writer, session)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   constants.AccessTokenTTL / time.Second,
	})
}

/*
Logout terminates the current user session.

POST /api/v1/auth/logout

Description: Revokes the session bound to the presented access token and
clears the refresh token cookie from the client.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	_ = handler.authService.Logout(request.Context(), claims.SessionID())

	clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
VerifyEmail activates a pending account.

POST /api/v1/auth/verify-email

Description: Validates an email verification token and moves the account
to active status.

Request:
  - Body: verifyEmailRequest (Token)

Response:
  - 200: Success: Email verified
  - 400: ErrInvalidJSON: Missing or invalid token
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.Token == "" {
		respond.Error(writer, request, validate.RequiredError(FieldToken, "is required"))
		return
	}

	if err := handler.authService.VerifyEmail(request.Context(), input.Token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Email verified successfully",
	})
}

/*
ChangePassword updates the authenticated user's password.

POST /api/v1/auth/change-password

Description: Verifies the current password, applies the new one, revokes
every other session, and replaces the caller's refresh token cookie.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Success: Password changed
  - 401: ErrUnauthorized: Current password incorrect
  - 400: ErrInvalidJSON: Weak password or validation failure
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	v := &validate.Validator{}
	v.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, 8)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	replacement, err := handler.authService.ChangePassword(
		request.Context(),
		claims.UserID(),
		claims.SessionID(),
		input.CurrentPassword,
		input.NewPassword,
		deviceFromRequest(request),
	)

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    replacement,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  time.Now().Add(constants.RefreshTokenTTL),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.OK(writer, map[string]string{
		FieldMessage: "Password changed successfully",
	})
}

/*
ListSessions returns the caller's live sessions.

GET /api/v1/auth/sessions

Response:
  - 200: []Session: Active sessions, oldest first
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessions, err := handler.authService.Sessions(request.Context(), claims.UserID())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
RevokeOtherSessions logs the caller out everywhere except the current session.

DELETE /api/v1/auth/sessions

All other sessions and every refresh token are revoked. A replacement refresh
cookie keeps the current session alive.

Response:
  - 200: {"revoked_sessions": n}
*/
func (handler *Handler) revokeOtherSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	revoked, replacement, err := handler.authService.RevokeOtherSessions(
		request.Context(),
		claims.UserID(),
		claims.SessionID(),
		deviceFromRequest(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    replacement,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  time.Now().Add(constants.RefreshTokenTTL),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.OK(writer, map[string]int{
		"revoked_sessions": revoked,
	})
}

/*
RevokeSession terminates one of the caller's own sessions.

DELETE /api/v1/auth/sessions/{sessionID}

Response:
  - 204: No Content: Session revoked
  - 404: ErrNotFound: Not the caller's session, or already dead
*/
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessionID := requestutil.ID(request, "sessionID")
	if err := handler.authService.RevokeSession(request.Context(), claims.UserID(), sessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ListSecurityEvents returns a page of the caller's security audit trail.

GET /api/v1/auth/security-events?page=1&limit=20

Response:
  - 200: []SecurityEvent with pagination metadata
*/
func (handler *Handler) listSecurityEvents(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	params := pagination.FromRequest(request)
	events, meta, err := handler.authService.SecurityEvents(request.Context(), claims.UserID(), params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, events, meta)
}

// # Transport Helpers

func setRefreshCookie(writer http.ResponseWriter, session *LoginSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// deviceFromRequest assembles the device fingerprint inputs for a request.
// Geo is whatever country code the edge proxy resolved; it is empty for
// direct connections.
//
// The IP must come from [middleware.RealIP], the same extraction the
// session-validation middleware uses. Raw RemoteAddr carries an ephemeral
// port, so hashing it would pin the session to a single TCP connection.
func deviceFromRequest(request *http.Request) sec.DeviceInfo {
	return sec.DeviceInfo{
		IP:        middleware.RealIP(request),
		UserAgent: request.UserAgent(),
		Geo:       request.Header.Get("X-Geo-Country"),
	}
}

// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

// Package middleware provides the HTTP middleware chain for the Propela API server.
//
// # Architecture
//
// Middleware intercepts incoming HTTP requests to apply global policies
// before they reach the domain handlers. This includes cross-cutting concerns
// like Logging, AuthN/AuthZ, Rate Limiting, and CORS.
package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/propelacrm/propela/internal/iam/perm"
	"github.com/propelacrm/propela/internal/iam/session"
	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/constants"
	"github.com/propelacrm/propela/internal/platform/ctxkey"
	"github.com/propelacrm/propela/internal/platform/metrics"
	"github.com/propelacrm/propela/internal/platform/respond"
	"github.com/propelacrm/propela/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify tokens in middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the token
// service implementation, allowing us to easily inject mocks during unit testing.
type TokenVerifier interface {
	VerifyToken(tokenStr string) (*sec.AuthClaims, error)
}

// SessionValidator checks that the session a token is bound to is still
// live and still bound to the presenting device.
type SessionValidator interface {
	Validate(ctx context.Context, sessionID string, device sec.DeviceInfo) (*session.Session, error)
}

// Authenticate extracts and verifies the JWT carried by the request.
//
// # Flow
//  1. Look for 'Authorization: Bearer <token>', falling back to the access
//     token cookie.
//  2. If absent, request proceeds as anonymous.
//  3. If present, parse and verify the JWT via [TokenVerifier].
//  4. Validate the bound session against the presenting device.
//  5. Inject [*sec.AuthClaims] into the request context for downstream use.
//
// A token whose session has died or moved devices is rejected even though
// its signature is still valid.
func Authenticate(verifier TokenVerifier, sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			tokenStr, err := extractToken(request)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			// Anonymous access: public routes decide for themselves.
			if tokenStr == "" {
				next.ServeHTTP(writer, request)
				return
			}

			claims, err := verifier.VerifyToken(tokenStr)
			if err != nil {
				respond.Error(writer, request, apperr.Unauthorized("Invalid or expired token"))
				return
			}

			device := sec.DeviceInfo{
				IP:        RealIP(request),
				UserAgent: request.UserAgent(),
				Geo:       request.Header.Get("X-Geo-Country"),
			}
			if _, err := sessions.Validate(request.Context(), claims.SessionID(), device); err != nil {
				respond.Error(writer, request, err)
				return
			}

			ctx := context.WithValue(request.Context(), ctxkey.KeyUser, claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// extractToken returns the access token from the Authorization header or the
// access token cookie, or "" for an anonymous request.
func extractToken(request *http.Request) (string, error) {
	authHeader := request.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", apperr.Unauthorized("Invalid authorization format")
		}
		return parts[1], nil
	}

	cookie, err := request.Cookie(constants.AccessTokenCookieName)
	if err != nil || cookie.Value == "" {
		return "", nil
	}
	return cookie.Value, nil
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := GetUser(request.Context())
		if claims == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequirePermission blocks requests whose token does not carry every listed
// action on the resourceCode.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It implies
// [RequireAuth]. Unknown actions in the route declaration panic at mount
// time rather than silently allowing.
//
// # Flow
//  1. Check if [*sec.AuthClaims] exists in context (implies AuthN).
//  2. Decode the token's permission map. A malformed map is a denial,
//     never a default-allow.
//  3. Check the required bits against the resourceCode's mask.
func RequirePermission(resourceCode string, actions ...perm.Action) func(http.Handler) http.Handler {
	required := perm.MustRequired(actions...)
	requiredNames := actionNames(required)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := GetUser(request.Context())
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			decoded, err := perm.DecodeMap(claims.PermissionMap)
			if err != nil {
				metrics.PermissionDenials.WithLabelValues(resourceCode).Inc()
				respond.Error(writer, request, apperr.InsufficientPermission(resourceCode, requiredNames))
				return
			}

			if !decoded.Has(resourceCode, required) {
				metrics.PermissionDenials.WithLabelValues(resourceCode).Inc()
				respond.Error(writer, request, apperr.InsufficientPermission(resourceCode, requiredNames))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// RequireRole blocks requests whose token does not carry the named role.
//
// Role names in the token are already expanded through the role hierarchy
// at issuance, so matching here is a hierarchical check. A route may stack
// this with [RequirePermission]; the request must then pass both.
func RequireRole(roleName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := GetUser(request.Context())
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			if !slices.Contains(claims.Roles, roleName) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// GetUser retrieves the [*sec.AuthClaims] from the [context.Context].
//
// # Returns
//   - A pointer to [*sec.AuthClaims] if the user is authenticated.
//   - nil if the user is anonymous.
func GetUser(ctx context.Context) *sec.AuthClaims {
	claims, ok := ctx.Value(ctxkey.KeyUser).(*sec.AuthClaims)
	if !ok {
		return nil
	}
	return claims
}

// actionNames renders a required mask for the denial payload.
func actionNames(mask perm.Mask) []string {
	actions := mask.Actions()
	names := make([]string, len(actions))
	for i, action := range actions {
		names[i] = string(action)
	}
	return names
}

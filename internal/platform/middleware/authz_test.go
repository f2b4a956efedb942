// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propelacrm/propela/internal/iam/perm"
	"github.com/propelacrm/propela/internal/iam/session"
	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/respond"
	"github.com/propelacrm/propela/internal/platform/sec"
)

type stubVerifier struct {
	claims *sec.AuthClaims
	err    error
}

func (s *stubVerifier) VerifyToken(string) (*sec.AuthClaims, error) {
	return s.claims, s.err
}

type stubSessions struct {
	err    error
	device sec.DeviceInfo
}

func (s *stubSessions) Validate(_ context.Context, _ string, device sec.DeviceInfo) (*session.Session, error) {
	s.device = device
	if s.err != nil {
		return nil, s.err
	}
	return &session.Session{}, nil
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		*hit = true
		writer.WriteHeader(http.StatusOK)
	})
}

func claimsWith(permissions map[string]string) *sec.AuthClaims {
	return &sec.AuthClaims{
		TenantID:      "ten-1",
		Roles:         []string{"agent"},
		PermissionMap: permissions,
	}
}

// # Authenticate

func TestAuthenticate_AnonymousPassesThrough(t *testing.T) {
	var hit bool
	handler := Authenticate(&stubVerifier{}, &stubSessions{})(okHandler(&hit))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, hit)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestAuthenticate_MalformedHeader(t *testing.T) {
	var hit bool
	handler := Authenticate(&stubVerifier{}, &stubSessions{})(okHandler(&hit))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Authorization", "Token abc")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	var hit bool
	verifier := &stubVerifier{err: errors.New("bad signature")}
	handler := Authenticate(verifier, &stubSessions{})(okHandler(&hit))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Authorization", "Bearer forged")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAuthenticate_DeadSessionRejectsValidToken(t *testing.T) {
	var hit bool
	verifier := &stubVerifier{claims: claimsWith(nil)}
	sessions := &stubSessions{err: apperr.AuthFailure(apperr.KindInvalidOrExpiredSession)}
	handler := Authenticate(verifier, sessions)(okHandler(&hit))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Authorization", "Bearer signed-but-dead")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAuthenticate_PassesDeviceToSessionCheck(t *testing.T) {
	var hit bool
	verifier := &stubVerifier{claims: claimsWith(nil)}
	sessions := &stubSessions{}
	handler := Authenticate(verifier, sessions)(okHandler(&hit))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Authorization", "Bearer valid")
	request.Header.Set("X-Real-IP", "203.0.113.10")
	request.Header.Set("User-Agent", "Mozilla/5.0 Chrome/127.0")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.True(t, hit)
	assert.Equal(t, "203.0.113.10", sessions.device.IP)
	assert.Equal(t, "Mozilla/5.0 Chrome/127.0", sessions.device.UserAgent)
}

// # RequirePermission

func authedRequest(claims *sec.AuthClaims) *http.Request {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	if claims == nil {
		return request
	}
	// Run through Authenticate so the claims land in context the same way
	// production places them.
	verifier := &stubVerifier{claims: claims}
	var captured *http.Request
	capture := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { captured = r })
	request.Header.Set("Authorization", "Bearer t")
	Authenticate(verifier, &stubSessions{})(capture).ServeHTTP(httptest.NewRecorder(), request)
	return captured
}

func TestRequirePermission_AllowsSufficientMask(t *testing.T) {
	var hit bool
	claims := claimsWith(perm.Map{
		perm.ResourceProperties: perm.MustRequired(perm.ActionView, perm.ActionEdit),
	}.Encode())

	handler := RequirePermission(perm.ResourceProperties, perm.ActionView)(okHandler(&hit))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(claims))

	assert.True(t, hit)
}

func TestRequirePermission_DeniesMissingBit(t *testing.T) {
	var hit bool
	claims := claimsWith(perm.Map{
		perm.ResourceProperties: perm.MustRequired(perm.ActionView),
	}.Encode())

	handler := RequirePermission(perm.ResourceProperties, perm.ActionDelete)(okHandler(&hit))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(claims))

	assert.False(t, hit)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	// The denial names what was missing so the client can explain it.
	var envelope respond.ErrorEnvelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Permission)
	assert.Equal(t, perm.ResourceProperties, envelope.Permission.ResourceCode)
	assert.Equal(t, []string{"DELETE"}, envelope.Permission.Required)
}

func TestRequirePermission_DeniesUnknownResource(t *testing.T) {
	var hit bool
	claims := claimsWith(perm.Map{
		perm.ResourceProperties: perm.MustRequired(perm.ActionView),
	}.Encode())

	handler := RequirePermission(perm.ResourceAdmin, perm.ActionManage)(okHandler(&hit))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(claims))

	assert.False(t, hit)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestRequirePermission_MalformedMapIsDenial(t *testing.T) {
	var hit bool
	claims := claimsWith(map[string]string{perm.ResourceProperties: "zz"})

	handler := RequirePermission(perm.ResourceProperties, perm.ActionView)(okHandler(&hit))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(claims))

	assert.False(t, hit)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	var envelope respond.ErrorEnvelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Permission)
	assert.Equal(t, perm.ResourceProperties, envelope.Permission.ResourceCode)
	assert.Equal(t, []string{"VIEW"}, envelope.Permission.Required)
}

func TestRequirePermission_AnonymousIsUnauthorized(t *testing.T) {
	var hit bool
	handler := RequirePermission(perm.ResourceProperties, perm.ActionView)(okHandler(&hit))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRequirePermission_UnknownActionPanicsAtMount(t *testing.T) {
	require.Panics(t, func() {
		RequirePermission(perm.ResourceProperties, perm.Action("TYPO"))
	})
}

// # RequireRole

func TestRequireRole_ChecksTokenRoles(t *testing.T) {
	var hit bool
	handler := RequireRole("agent")(okHandler(&hit))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(claimsWith(nil)))
	assert.True(t, hit)

	hit = false
	handler = RequireRole("broker-owner")(okHandler(&hit))
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest(claimsWith(nil)))
	assert.False(t, hit)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

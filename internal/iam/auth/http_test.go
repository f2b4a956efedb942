// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/propelacrm/propela/internal/platform/middleware"
	"github.com/propelacrm/propela/internal/platform/sec"
)

// middlewareDevice mirrors how Authenticate rebuilds the device bundle when
// it validates the session on every authenticated request.
func middlewareDevice(request *http.Request) sec.DeviceInfo {
	return sec.DeviceInfo{
		IP:        middleware.RealIP(request),
		UserAgent: request.UserAgent(),
		Geo:       request.Header.Get("X-Geo-Country"),
	}
}

// A session created at login must validate on the next request from the same
// client. The ephemeral port changes per TCP connection, so the hash must be
// computed from the bare host on both sides.
func TestDeviceFromRequest_HashStableAcrossConnections(t *testing.T) {
	login := httptest.NewRequest(http.MethodPost, "/login", nil)
	login.RemoteAddr = "203.0.113.5:51234"
	login.Header.Set("User-Agent", "propela-web/1.0")

	next := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	next.RemoteAddr = "203.0.113.5:51999"
	next.Header.Set("User-Agent", "propela-web/1.0")

	assert.Equal(t,
		deviceFromRequest(login).DeviceHash(),
		middlewareDevice(next).DeviceHash(),
		"direct connections must hash to the same device across requests",
	)
}

func TestDeviceFromRequest_HashStableBehindProxyChain(t *testing.T) {
	login := httptest.NewRequest(http.MethodPost, "/login", nil)
	login.RemoteAddr = "10.0.0.1:40000"
	login.Header.Set("User-Agent", "propela-web/1.0")
	login.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	next := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	next.RemoteAddr = "10.0.0.2:40001"
	next.Header.Set("User-Agent", "propela-web/1.0")
	next.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.2")

	assert.Equal(t,
		deviceFromRequest(login).DeviceHash(),
		middlewareDevice(next).DeviceHash(),
		"only the first forwarded hop identifies the client device",
	)
}

func TestDeviceFromRequest_DistinctClientsDiffer(t *testing.T) {
	first := httptest.NewRequest(http.MethodPost, "/login", nil)
	first.RemoteAddr = "203.0.113.5:51234"
	first.Header.Set("User-Agent", "propela-web/1.0")

	second := httptest.NewRequest(http.MethodPost, "/login", nil)
	second.RemoteAddr = "203.0.113.9:51234"
	second.Header.Set("User-Agent", "propela-web/1.0")

	assert.NotEqual(t,
		deviceFromRequest(first).DeviceHash(),
		deviceFromRequest(second).DeviceHash(),
	)
}

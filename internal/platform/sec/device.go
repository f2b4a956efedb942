// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package sec

import "strings"

// DeviceInfo is the request attribute bundle the HTTP layer hands to the
// authentication core. Geo is resolved upstream (edge/geo collaborator) and
// may be empty.
type DeviceInfo struct {
	IP        string
	UserAgent string
	Geo       string
}

// DeviceHash derives the one-way device fingerprint a session is pinned to.
//
// The fingerprint covers both the user agent and the IP: a token replayed
// from a different machine or network recomputes to a different hash and the
// session is rejected and revoked.
func (d DeviceInfo) DeviceHash() string {
	return HashAttribute(d.UserAgent + "|" + d.IP)
}

// IPHash returns the one-way hash of the client IP.
func (d DeviceInfo) IPHash() string {
	return HashAttribute(d.IP)
}

// UserAgentHash returns the one-way hash of the raw user agent string.
func (d DeviceInfo) UserAgentHash() string {
	return HashAttribute(d.UserAgent)
}

// Context assembles the token security-context block from the device bundle.
func (d DeviceInfo) Context() SecurityContext {
	return SecurityContext{
		IPHash:        d.IPHash(),
		DeviceHash:    d.DeviceHash(),
		Geo:           d.Geo,
		UserAgentHash: d.UserAgentHash(),
	}
}

// BrowserFamily extracts a coarse browser family from the user agent.
//
// This is deliberately crude. It only feeds the suspicious-activity
// heuristic, which compares families for overlap; it never gates anything
// on its own.
func (d DeviceInfo) BrowserFamily() string {
	agent := strings.ToLower(d.UserAgent)

	switch {
	case strings.Contains(agent, "edg/"):
		return "edge"
	case strings.Contains(agent, "opr/"), strings.Contains(agent, "opera"):
		return "opera"
	case strings.Contains(agent, "chrome"):
		return "chrome"
	case strings.Contains(agent, "safari"):
		return "safari"
	case strings.Contains(agent, "firefox"):
		return "firefox"
	case agent == "":
		return "unknown"
	default:
		return "other"
	}
}

// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

/*
Package perm implements the bitmask permission model used by every
authorization check in Propela.

Each protected resource category (identified by a short resourceCode such as
"0p" for properties) owns an independent bit-space. Every action category is
assigned a fixed power-of-two bit inside that space. A user's effective mask
for a resourceCode is the bitwise OR of every bit granted by every role the
user holds — aggregation is a strict union, never a subtraction.

# Architecture boundaries

This package is a pure in-memory data structure with no I/O. It provides the
hex codec used to transport permission maps inside access tokens.

# What this package must NOT do

  - Access Redis, databases, or the network.
  - Import the rbac, session, or token packages.
  - Default-allow on malformed input: a permission map that fails to decode
    always yields a denial.
*/
package perm

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is a named permission action category.
type Action string

// Action categories. Bit values are fixed wire constants: they appear
// hex-encoded inside issued tokens and must never be renumbered.
const (
	ActionView        Action = "VIEW"
	ActionEdit        Action = "EDIT"
	ActionDelete      Action = "DELETE"
	ActionManage      Action = "MANAGE"
	ActionShare       Action = "SHARE"
	ActionCommunicate Action = "COMMUNICATE"
)

// actionBits maps each action category to its power-of-two bit.
var actionBits = map[Action]Mask{
	ActionView:        0x1,
	ActionEdit:        0x2,
	ActionDelete:      0x4,
	ActionManage:      0x8,
	ActionShare:       0x10,
	ActionCommunicate: 0x20,
}

// Resource codes for the protected categories of the CRM.
const (
	ResourceProperties = "0p"
	ResourceDocuments  = "0d"
	ResourceTasks      = "0t"
	ResourceContacts   = "0c"
	ResourceStorage    = "0s"
	ResourceAdmin      = "0a"
)

// Mask is a per-resourceCode permission bitmask. Bit positions are shared
// across all resource codes; the bit-spaces are independent only in the
// sense that a mask is always interpreted relative to one resourceCode.
type Mask uint64

// Bit returns the bit assigned to an action category.
func Bit(action Action) (Mask, error) {
	bit, ok := actionBits[action]
	if !ok {
		return 0, fmt.Errorf("perm: unknown action %q", action)
	}
	return bit, nil
}

// Required computes the mask a request must satisfy: the OR of the bits of
// every listed action. An unknown action is a hard error, never a zero bit —
// a typo in a route declaration must fail loudly, not silently allow.
func Required(actions ...Action) (Mask, error) {
	var mask Mask
	for _, action := range actions {
		bit, err := Bit(action)
		if err != nil {
			return 0, err
		}
		mask |= bit
	}
	return mask, nil
}

// MustRequired is Required for static route declarations, where an unknown
// action is a programming error.
func MustRequired(actions ...Action) Mask {
	mask, err := Required(actions...)
	if err != nil {
		panic(err)
	}
	return mask
}

// Has reports whether every bit of required is set in the mask.
func (m Mask) Has(required Mask) bool {
	return m&required == required
}

// IsZero reports whether no action bit is set.
func (m Mask) IsZero() bool {
	return m == 0
}

// With returns the mask with the given action's bit set.
func (m Mask) With(action Action) Mask {
	bit, ok := actionBits[action]
	if !ok {
		return m
	}
	return m | bit
}

// Actions expands the mask back into its named action categories.
func (m Mask) Actions() []Action {
	// Stable order for error payloads and logs.
	ordered := []Action{ActionView, ActionEdit, ActionDelete, ActionManage, ActionShare, ActionCommunicate}

	var actions []Action
	for _, action := range ordered {
		if m&actionBits[action] != 0 {
			actions = append(actions, action)
		}
	}
	return actions
}

// Hex encodes the mask for token transport.
func (m Mask) Hex() string {
	return strconv.FormatUint(uint64(m), 16)
}

// ParseMask decodes a hex-encoded mask.
//
// Decoding failure is a hard error. Callers translate it into a denial —
// a corrupted token must never degrade into a default-allow.
func ParseMask(hexValue string) (Mask, error) {
	trimmed := strings.TrimSpace(hexValue)
	if trimmed == "" {
		return 0, fmt.Errorf("perm: empty mask")
	}
	value, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("perm: malformed mask %q: %w", hexValue, err)
	}
	return Mask(value), nil
}

// # Permission Maps

// Map is the aggregated permission set of a user: resourceCode -> mask.
type Map map[string]Mask

// MaskFor returns the user's mask for a resourceCode. A resourceCode absent
// from the map is equivalent to a zero mask.
func (pm Map) MaskFor(resourceCode string) Mask {
	return pm[resourceCode]
}

// Has reports whether the map satisfies the required mask on a resourceCode.
func (pm Map) Has(resourceCode string, required Mask) bool {
	return pm.MaskFor(resourceCode).Has(required)
}

// Grant sets the given action bits, creating the resource entry if needed.
func (pm Map) Grant(resourceCode string, actions ...Action) {
	mask := pm[resourceCode]
	for _, action := range actions {
		mask = mask.With(action)
	}
	pm[resourceCode] = mask
}

// Union merges other into the map (strict union per resourceCode).
func (pm Map) Union(other Map) {
	for code, mask := range other {
		pm[code] |= mask
	}
}

// Encode renders the map as hex strings for token transport.
func (pm Map) Encode() map[string]string {
	encoded := make(map[string]string, len(pm))
	for code, mask := range pm {
		encoded[code] = mask.Hex()
	}
	return encoded
}

// DecodeMap parses a transported permission map.
//
// Any malformed entry fails the whole decode; the caller must deny.
func DecodeMap(encoded map[string]string) (Map, error) {
	decoded := make(Map, len(encoded))
	for code, hexValue := range encoded {
		mask, err := ParseMask(hexValue)
		if err != nil {
			return nil, fmt.Errorf("perm: resource %q: %w", code, err)
		}
		decoded[code] = mask
	}
	return decoded, nil
}

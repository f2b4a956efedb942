// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// # TOTP (RFC 6238)

const (
	totpPeriod = 30 * time.Second
	totpDigits = 6

	// totpSkewSteps tolerates one period of clock drift in each direction.
	totpSkewSteps = 1
)

// TOTPVerifier validates time-based one-time codes against the user's
// enrolled secret. Codes are 6 digits over 30-second periods.
type TOTPVerifier struct {
	now func() time.Time
}

// NewTOTPVerifier constructs a verifier using the wall clock.
func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{now: time.Now}
}

// Verify reports whether code matches the user's secret within the allowed
// clock skew. A user without an enrolled secret never verifies.
func (verifier *TOTPVerifier) Verify(_ context.Context, user *User, code string) (bool, error) {
	if user.SecondFactorSecret == "" {
		return false, nil
	}

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).
		DecodeString(strings.ToUpper(strings.TrimSpace(user.SecondFactorSecret)))
	if err != nil {
		return false, fmt.Errorf("auth_totp_bad_secret: %w", err)
	}

	step := verifier.now().Unix() / int64(totpPeriod/time.Second)
	for offset := int64(-totpSkewSteps); offset <= totpSkewSteps; offset++ {
		expected := hotp(secret, uint64(step+offset))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// hotp computes the truncated HMAC-SHA1 code for a counter (RFC 4226).
func hotp(secret []byte, counter uint64) string {
	var message [8]byte
	binary.BigEndian.PutUint64(message[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(message[:])
	digest := mac.Sum(nil)

	offset := digest[len(digest)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", totpDigits, truncated%1_000_000)
}

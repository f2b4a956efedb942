// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6238 Appendix B test vector secret ("12345678901234567890" in base32).
const rfcTestSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func frozenVerifier(at time.Time) *TOTPVerifier {
	return &TOTPVerifier{now: func() time.Time { return at }}
}

func TestTOTPVerifier_RFCVectors(t *testing.T) {
	user := &User{SecondFactorSecret: rfcTestSecret}

	// 1970-01-01 00:00:59 UTC -> 94287082, truncated to 6 digits.
	verifier := frozenVerifier(time.Unix(59, 0))
	ok, err := verifier.Verify(context.Background(), user, "287082")
	require.NoError(t, err)
	assert.True(t, ok)

	// 2005-03-18 01:58:29 UTC -> 07081804.
	verifier = frozenVerifier(time.Unix(1111111109, 0))
	ok, err = verifier.Verify(context.Background(), user, "081804")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTOTPVerifier_RejectsWrongCode(t *testing.T) {
	user := &User{SecondFactorSecret: rfcTestSecret}
	verifier := frozenVerifier(time.Unix(59, 0))

	ok, err := verifier.Verify(context.Background(), user, "000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTOTPVerifier_ToleratesOnePeriodOfSkew(t *testing.T) {
	user := &User{SecondFactorSecret: rfcTestSecret}

	// The code for t=59s still verifies one period later.
	verifier := frozenVerifier(time.Unix(59+30, 0))
	ok, err := verifier.Verify(context.Background(), user, "287082")
	require.NoError(t, err)
	assert.True(t, ok)

	// Two periods later it does not.
	verifier = frozenVerifier(time.Unix(59+90, 0))
	ok, err = verifier.Verify(context.Background(), user, "287082")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTOTPVerifier_NoSecretNeverVerifies(t *testing.T) {
	verifier := NewTOTPVerifier()
	ok, err := verifier.Verify(context.Background(), &User{}, "287082")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTOTPVerifier_MalformedSecret(t *testing.T) {
	verifier := NewTOTPVerifier()
	_, err := verifier.Verify(context.Background(), &User{SecondFactorSecret: "not base32!"}, "287082")
	require.Error(t, err)
}

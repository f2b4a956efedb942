// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package perm_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propelacrm/propela/internal/iam/perm"
)

/*
TestRequired_ComposesActionBits verifies the fixed bit assignments and the
OR composition of required masks.
*/
func TestRequired_ComposesActionBits(t *testing.T) {
	tests := []struct {
		name    string
		actions []perm.Action
		want    perm.Mask
	}{
		{"view only", []perm.Action{perm.ActionView}, 0x1},
		{"edit only", []perm.Action{perm.ActionEdit}, 0x2},
		{"view+edit", []perm.Action{perm.ActionView, perm.ActionEdit}, 0x3},
		{"delete", []perm.Action{perm.ActionDelete}, 0x4},
		{"manage+share", []perm.Action{perm.ActionManage, perm.ActionShare}, 0x18},
		{"communicate", []perm.Action{perm.ActionCommunicate}, 0x20},
		{"duplicates collapse", []perm.Action{perm.ActionView, perm.ActionView}, 0x1},
		{"empty", nil, 0x0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mask, err := perm.Required(tc.actions...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, mask)
		})
	}
}

func TestRequired_UnknownActionFails(t *testing.T) {
	_, err := perm.Required(perm.Action("TELEPORT"))
	assert.Error(t, err)
}

/*
TestMask_Has property-tests the subset semantics over random bit patterns:
Has holds iff every required bit is set in the user mask.
*/
func TestMask_Has(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		userMask := perm.Mask(rng.Uint64())
		requiredMask := perm.Mask(rng.Uint64())

		want := userMask&requiredMask == requiredMask
		assert.Equal(t, want, userMask.Has(requiredMask),
			"user=%x required=%x", uint64(userMask), uint64(requiredMask))
	}

	// Edge cases.
	assert.True(t, perm.Mask(0).Has(0), "empty requirement always passes")
	assert.True(t, perm.Mask(0x3).Has(0x3))
	assert.False(t, perm.Mask(0x3).Has(0x4))
}

/*
TestMap_UnionIsStrictUnion verifies role aggregation: the user mask for a
resource is the OR over all roles, never an intersection.
*/
func TestMap_UnionIsStrictUnion(t *testing.T) {
	roleA := perm.Map{}
	roleA.Grant(perm.ResourceProperties, perm.ActionView)

	roleB := perm.Map{}
	roleB.Grant(perm.ResourceProperties, perm.ActionEdit)
	roleB.Grant(perm.ResourceDocuments, perm.ActionView, perm.ActionShare)

	aggregated := perm.Map{}
	aggregated.Union(roleA)
	aggregated.Union(roleB)

	assert.Equal(t, perm.Mask(0x3), aggregated.MaskFor(perm.ResourceProperties))
	assert.Equal(t, perm.Mask(0x11), aggregated.MaskFor(perm.ResourceDocuments))

	// A check requiring {VIEW, EDIT} on properties passes.
	assert.True(t, aggregated.Has(perm.ResourceProperties, perm.MustRequired(perm.ActionView, perm.ActionEdit)))

	// A check requiring DELETE fails.
	assert.False(t, aggregated.Has(perm.ResourceProperties, perm.MustRequired(perm.ActionDelete)))
}

func TestMap_AbsentResourceIsZeroMask(t *testing.T) {
	pm := perm.Map{}
	pm.Grant(perm.ResourceProperties, perm.ActionView)

	assert.Equal(t, perm.Mask(0), pm.MaskFor(perm.ResourceTasks))
	assert.False(t, pm.Has(perm.ResourceTasks, perm.MustRequired(perm.ActionView)))
}

/*
TestCodec_HexRoundTrip verifies the token transport encoding.
*/
func TestCodec_HexRoundTrip(t *testing.T) {
	original := perm.Map{
		perm.ResourceProperties: 0x3,
		perm.ResourceDocuments:  0x3f,
		perm.ResourceAdmin:      0x8,
	}

	decoded, err := perm.DecodeMap(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

/*
TestCodec_MalformedHexIsHardFailure verifies that a corrupted permission map
denies rather than default-allows: decoding fails outright.
*/
func TestCodec_MalformedHexIsHardFailure(t *testing.T) {
	tests := []struct {
		name    string
		encoded map[string]string
	}{
		{"non-hex", map[string]string{"0p": "zz"}},
		{"empty value", map[string]string{"0p": ""}},
		{"whitespace", map[string]string{"0p": "   "}},
		{"overflow", map[string]string{"0p": "1ffffffffffffffff"}},
		{"negative", map[string]string{"0p": "-1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := perm.DecodeMap(tc.encoded)
			assert.Error(t, err)
		})
	}
}

func TestMask_ActionsExpansion(t *testing.T) {
	mask := perm.MustRequired(perm.ActionView, perm.ActionDelete, perm.ActionCommunicate)
	assert.Equal(t, []perm.Action{perm.ActionView, perm.ActionDelete, perm.ActionCommunicate}, mask.Actions())

	assert.Nil(t, perm.Mask(0).Actions())
}

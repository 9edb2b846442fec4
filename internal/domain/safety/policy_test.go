package safety

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

func boolPtr(b bool) *bool { return &b }

func TestDefaultsFor_Tiers(t *testing.T) {
	tests := []struct {
		age  int
		want Settings
	}{
		{0, Settings{true, false, false, true}},
		{6, Settings{true, false, false, true}},
		{7, Settings{true, true, false, true}},
		{9, Settings{true, true, false, true}},
		{10, Settings{false, true, true, true}},
		{12, Settings{false, true, true, true}},
		{13, Settings{false, true, true, true}},
		{17, Settings{false, true, true, true}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultsFor(tt.age), "age %d", tt.age)
	}
}

func TestValidateOverride_AgeFiveCannotBrowse(t *testing.T) {
	result := ValidateOverride(5, Update{CanBrowseCommunity: boolPtr(true)})

	assert.False(t, result.Valid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, FieldCanBrowseCommunity, result.Violations[0].Field)
	assert.Equal(t, RuleCannotLoosenPermission, result.Violations[0].Rule)
}

func TestValidateOverride_AlreadyRestrictiveIsValid(t *testing.T) {
	result := ValidateOverride(5, Update{RequiresParentAssistance: boolPtr(true)})

	assert.True(t, result.Valid)
	assert.Empty(t, result.Violations)
	assert.NoError(t, result.Err("Update"))
}

func TestValidateOverride_ReportsEveryField(t *testing.T) {
	result := ValidateOverride(4, Update{
		RequiresParentAssistance: boolPtr(false),
		CanBrowseCommunity:       boolPtr(true),
		CanPostToCommunity:       boolPtr(true),
		CanViewGlobalMap:         boolPtr(false), // tightening is always fine
	})

	assert.False(t, result.Valid)
	fields := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{
		FieldRequiresParentAssistance,
		FieldCanBrowseCommunity,
		FieldCanPostToCommunity,
	}, fields)

	err := result.Err("Update")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrPolicyViolation))

	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Len(t, de.Violations, 3)
}

func TestValidateOverride_TighteningAlwaysAllowed(t *testing.T) {
	for age := 0; age <= 18; age++ {
		result := ValidateOverride(age, Update{
			RequiresParentAssistance: boolPtr(true),
			CanBrowseCommunity:       boolPtr(false),
			CanPostToCommunity:       boolPtr(false),
			CanViewGlobalMap:         boolPtr(false),
		})
		assert.True(t, result.Valid, "age %d", age)
	}
}

func TestValidateOverride_Deterministic(t *testing.T) {
	req := Update{CanPostToCommunity: boolPtr(true)}
	first := ValidateOverride(8, req)
	second := ValidateOverride(8, req)
	assert.Equal(t, first, second)
}

func TestUpdateApply_TracksChangedFields(t *testing.T) {
	current := DefaultsFor(11)

	next, changed := Update{
		CanPostToCommunity: boolPtr(false),
		CanViewGlobalMap:   boolPtr(true), // unchanged
	}.Apply(current)

	assert.False(t, next.CanPostToCommunity)
	assert.True(t, next.CanViewGlobalMap)
	assert.Equal(t, []string{FieldCanPostToCommunity}, changed)
}

func TestModeDescription(t *testing.T) {
	assert.Contains(t, ModeDescription(5, shared.LanguageES), "Súper Seguro")
	assert.Contains(t, ModeDescription(8, shared.LanguageEN), "Safe Mode")
	assert.Contains(t, ModeDescription(11, shared.LanguageES), "Independiente")
	assert.Contains(t, ModeDescription(15, shared.LanguageEN), "Full Mode")
}

func TestClamp_YoungerAgeTightens(t *testing.T) {
	next, changed := Clamp(DefaultsFor(11), 5)

	assert.Equal(t, DefaultsFor(5), next)
	assert.Equal(t, []string{
		FieldRequiresParentAssistance,
		FieldCanBrowseCommunity,
		FieldCanPostToCommunity,
	}, changed)
}

func TestClamp_OlderAgeKeepsGuardianChoices(t *testing.T) {
	current := DefaultsFor(8)
	current.CanViewGlobalMap = false

	next, changed := Clamp(current, 12)

	assert.Equal(t, current, next, "nothing loosens on its own")
	assert.Empty(t, changed)
}

func TestClamp_ResultAlwaysPassesOverrideRules(t *testing.T) {
	loose := Settings{CanBrowseCommunity: true, CanPostToCommunity: true, CanViewGlobalMap: true}
	for age := 0; age <= 18; age++ {
		next, _ := Clamp(loose, age)
		result := ValidateOverride(age, Update{
			RequiresParentAssistance: boolPtr(next.RequiresParentAssistance),
			CanBrowseCommunity:       boolPtr(next.CanBrowseCommunity),
			CanPostToCommunity:       boolPtr(next.CanPostToCommunity),
			CanViewGlobalMap:         boolPtr(next.CanViewGlobalMap),
		})
		assert.True(t, result.Valid, "age %d", age)
	}
}

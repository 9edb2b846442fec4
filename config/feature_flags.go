package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles with gradual rollout.
// Guardian-facing flags are bucketed by the guardian's user id so a
// guardian keeps the same experience across requests.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userOverrides: userID -> feature -> enabled
	userOverrides map[string]map[string]bool

	now func() time.Time
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent is 0-100. Users are bucketed by a hash of their id.
	RolloutPercent int

	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID  string
	IsAdmin bool
}

// Predefined feature flag names.
const (
	// Guardians may approve or reject their own children's submissions.
	FeatureReviewGuardianAllowed = "review.guardian_allowed"

	// Notifications are emailed through SES instead of only logged.
	FeatureNotifyEmail = "notify.email"

	// Redemptions honour the Idempotency-Key header (needs Redis).
	FeatureRedemptionIdempotency = "redemption.idempotency"

	// Reward listings and missions are served from caches.
	FeatureCatalogCache = "catalog.cache"

	// Completing initiation credits the welcome bonus.
	FeatureOnboardingWelcomeBonus = "onboarding.welcome_bonus"
)

// LoadFeatureFlags loads feature flags from FEATURE_* environment variables.
func LoadFeatureFlags() *FeatureFlags {
	return loadFeatureFlags(os.Getenv)
}

func loadFeatureFlags(getenv func(string) string) *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
		now:           time.Now,
	}
	ff.initializeDefaults()
	ff.loadFromEnvironment(getenv)
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureReviewGuardianAllowed] = &Feature{
		Name:           FeatureReviewGuardianAllowed,
		Description:    "Guardians review their own children's submissions",
		Enabled:        false,
		RolloutPercent: 0,
	}
	ff.features[FeatureNotifyEmail] = &Feature{
		Name:           FeatureNotifyEmail,
		Description:    "Email guardians through SES",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureRedemptionIdempotency] = &Feature{
		Name:           FeatureRedemptionIdempotency,
		Description:    "Reject replayed redemption requests",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureCatalogCache] = &Feature{
		Name:           FeatureCatalogCache,
		Description:    "Cache reward listings and published missions",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureOnboardingWelcomeBonus] = &Feature{
		Name:           FeatureOnboardingWelcomeBonus,
		Description:    "Credit the welcome bonus on initiation",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment applies overrides.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_REVIEW_GUARDIAN_ALLOWED=true
func (ff *FeatureFlags) loadFromEnvironment(getenv func(string) string) {
	for name, feature := range ff.features {
		val := getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// "review.guardian_allowed" -> "FEATURE_REVIEW_GUARDIAN_ALLOWED"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context. A nil
// context asks about the process as a whole: only a full rollout counts.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.isEnabledLocked(featureName, ctx)
}

func (ff *FeatureFlags) isEnabledLocked(featureName string, ctx *FeatureContext) bool {
	if ctx != nil && ctx.UserID != "" {
		if overrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	now := ff.now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if ctx != nil && ctx.IsAdmin {
		return true
	}
	if feature.RolloutPercent >= 100 {
		return true
	}
	if ctx == nil || ctx.UserID == "" {
		return false
	}
	return inRollout(ctx.UserID, featureName, feature.RolloutPercent)
}

// inRollout uses consistent hashing so users stay in their bucket.
func inRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(featureName))
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride sets a feature override for a specific user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}

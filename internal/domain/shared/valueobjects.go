package shared

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ══════════════════════════════════════════════════════════════════════════════

// NewID returns a new random entity identifier.
func NewID() string {
	return uuid.New().String()
}

// ══════════════════════════════════════════════════════════════════════════════
// LANGUAGE
// ══════════════════════════════════════════════════════════════════════════════

// Language selects the copy used for user-facing texts.
type Language string

const (
	LanguageES Language = "es"
	LanguageEN Language = "en"
)

// ParseLanguage returns the language for a code, defaulting to Spanish.
func ParseLanguage(code string) Language {
	if strings.HasPrefix(strings.ToLower(code), "en") {
		return LanguageEN
	}
	return LanguageES
}

// ══════════════════════════════════════════════════════════════════════════════
// RANDOMNESS & TIME
// ══════════════════════════════════════════════════════════════════════════════

// RandomSource yields uniformly distributed integers in [0, n).
// Tests inject a seeded source so assignments are deterministic.
type RandomSource interface {
	Intn(n int) int
}

// lockedRand makes *rand.Rand safe for concurrent use.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// NewSeededRandom returns a RandomSource seeded with seed.
func NewSeededRandom(seed int64) RandomSource {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

// NewRandom returns a RandomSource seeded from the clock.
func NewRandom() RandomSource {
	return NewSeededRandom(time.Now().UnixNano())
}

// Clock abstracts the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Handy in tests.
type FixedClock struct{ T time.Time }

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.T }

// Package safety содержит политику безопасности ребёнка по возрасту.
//
// Политика - чистая функция: никаких побочных эффектов, только вычисление
// значений по умолчанию для возрастной группы и проверка родительских
// изменений по правилу монотонного ужесточения.
package safety

import (
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS
// ══════════════════════════════════════════════════════════════════════════════

// Названия полей, как они видны клиентам API.
const (
	FieldRequiresParentAssistance = "requiresParentAssistance"
	FieldCanBrowseCommunity       = "canBrowseCommunity"
	FieldCanPostToCommunity       = "canPostToCommunity"
	FieldCanViewGlobalMap         = "canViewGlobalMap"
)

// Settings - четыре флага безопасности ребёнка.
type Settings struct {
	RequiresParentAssistance bool `json:"requiresParentAssistance"`
	CanBrowseCommunity       bool `json:"canBrowseCommunity"`
	CanPostToCommunity       bool `json:"canPostToCommunity"`
	CanViewGlobalMap         bool `json:"canViewGlobalMap"`
}

// Update - частичное изменение настроек. nil означает "не менять".
type Update struct {
	RequiresParentAssistance *bool `json:"requiresParentAssistance,omitempty"`
	CanBrowseCommunity       *bool `json:"canBrowseCommunity,omitempty"`
	CanPostToCommunity       *bool `json:"canPostToCommunity,omitempty"`
	CanViewGlobalMap         *bool `json:"canViewGlobalMap,omitempty"`
}

// IsEmpty возвращает true, если ни одно поле не задано.
func (u Update) IsEmpty() bool {
	return u.RequiresParentAssistance == nil &&
		u.CanBrowseCommunity == nil &&
		u.CanPostToCommunity == nil &&
		u.CanViewGlobalMap == nil
}

// Apply накладывает изменение на текущие настройки и возвращает
// итог вместе со списком реально изменённых полей.
func (u Update) Apply(current Settings) (Settings, []string) {
	next := current
	changed := make([]string, 0, 4)

	set := func(dst *bool, v *bool, name string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = append(changed, name)
		}
	}

	set(&next.RequiresParentAssistance, u.RequiresParentAssistance, FieldRequiresParentAssistance)
	set(&next.CanBrowseCommunity, u.CanBrowseCommunity, FieldCanBrowseCommunity)
	set(&next.CanPostToCommunity, u.CanPostToCommunity, FieldCanPostToCommunity)
	set(&next.CanViewGlobalMap, u.CanViewGlobalMap, FieldCanViewGlobalMap)

	return next, changed
}

// ══════════════════════════════════════════════════════════════════════════════
// AGE TIERS
// ══════════════════════════════════════════════════════════════════════════════

// Tier - возрастная группа.
type Tier int

const (
	TierSuperSafe   Tier = iota // 0-6 лет
	TierSafe                    // 7-9 лет
	TierIndependent             // 10-12 лет
	TierFull                    // 13+
)

// TierFor возвращает возрастную группу.
func TierFor(ageYears int) Tier {
	switch {
	case ageYears <= 6:
		return TierSuperSafe
	case ageYears <= 9:
		return TierSafe
	case ageYears <= 12:
		return TierIndependent
	default:
		return TierFull
	}
}

// DefaultsFor возвращает настройки по умолчанию для возраста.
func DefaultsFor(ageYears int) Settings {
	switch TierFor(ageYears) {
	case TierSuperSafe:
		return Settings{
			RequiresParentAssistance: true,
			CanBrowseCommunity:       false,
			CanPostToCommunity:       false,
			CanViewGlobalMap:         true,
		}
	case TierSafe:
		return Settings{
			RequiresParentAssistance: true,
			CanBrowseCommunity:       true,
			CanPostToCommunity:       false,
			CanViewGlobalMap:         true,
		}
	default:
		// 10-12 и 13+ совпадают по флагам, отличаются только описанием режима.
		return Settings{
			RequiresParentAssistance: false,
			CanBrowseCommunity:       true,
			CanPostToCommunity:       true,
			CanViewGlobalMap:         true,
		}
	}
}

// Clamp приводит текущие настройки к новому возрасту. Каждый флаг берёт
// более строгое из текущего значения и значения по умолчанию: ужесточения
// родителя сохраняются, автоматически ничего не ослабляется.
// Возвращает итог и список изменённых полей.
func Clamp(current Settings, ageYears int) (Settings, []string) {
	defaults := DefaultsFor(ageYears)
	next := Settings{
		RequiresParentAssistance: current.RequiresParentAssistance || defaults.RequiresParentAssistance,
		CanBrowseCommunity:       current.CanBrowseCommunity && defaults.CanBrowseCommunity,
		CanPostToCommunity:       current.CanPostToCommunity && defaults.CanPostToCommunity,
		CanViewGlobalMap:         current.CanViewGlobalMap && defaults.CanViewGlobalMap,
	}
	return Update{
		RequiresParentAssistance: &next.RequiresParentAssistance,
		CanBrowseCommunity:       &next.CanBrowseCommunity,
		CanPostToCommunity:       &next.CanPostToCommunity,
		CanViewGlobalMap:         &next.CanViewGlobalMap,
	}.Apply(current)
}

// ModeDescription возвращает название режима для родителей.
func ModeDescription(ageYears int, lang shared.Language) string {
	tier := TierFor(ageYears)
	if lang == shared.LanguageEN {
		switch tier {
		case TierSuperSafe:
			return "Super Safe Mode - Requires parent assistance for all activities"
		case TierSafe:
			return "Safe Mode - Can explore with parental supervision"
		case TierIndependent:
			return "Independent Mode - Can use app safely on their own"
		default:
			return "Full Mode - Access to all features safely"
		}
	}

	switch tier {
	case TierSuperSafe:
		return "Modo Súper Seguro - Requiere asistencia de padres para todas las actividades"
	case TierSafe:
		return "Modo Seguro - Puede explorar con supervisión parental"
	case TierIndependent:
		return "Modo Independiente - Puede usar la app de forma segura"
	default:
		return "Modo Completo - Acceso a todas las funciones de forma segura"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OVERRIDE VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Rule names reported in violations.
const (
	RuleCannotDisableAssistance = "cannot_disable_parent_assistance"
	RuleCannotLoosenPermission  = "cannot_exceed_age_default"
)

// Result - итог проверки изменения.
type Result struct {
	Valid      bool                    `json:"valid"`
	Violations []shared.FieldViolation `json:"violations"`
}

// ValidateOverride проверяет запрошенные изменения относительно значений
// по умолчанию для возраста. Родитель может только ужесточить настройку:
// разрешающие флаги двигаются к false, requiresParentAssistance - к true.
// Каждое нарушение возвращается отдельно, с именем поля.
func ValidateOverride(ageYears int, requested Update) Result {
	defaults := DefaultsFor(ageYears)
	violations := make([]shared.FieldViolation, 0)

	if v := requested.RequiresParentAssistance; v != nil && !*v && defaults.RequiresParentAssistance {
		violations = append(violations, shared.FieldViolation{
			Field:   FieldRequiresParentAssistance,
			Rule:    RuleCannotDisableAssistance,
			Message: "Cannot disable parent assistance for this age group",
		})
	}

	permissions := []struct {
		field     string
		requested *bool
		allowed   bool
		message   string
	}{
		{FieldCanBrowseCommunity, requested.CanBrowseCommunity, defaults.CanBrowseCommunity,
			"Community browsing not available for this age group"},
		{FieldCanPostToCommunity, requested.CanPostToCommunity, defaults.CanPostToCommunity,
			"Community posting not available for this age group"},
		{FieldCanViewGlobalMap, requested.CanViewGlobalMap, defaults.CanViewGlobalMap,
			"Global map not available for this age group"},
	}

	for _, p := range permissions {
		if p.requested != nil && *p.requested && !p.allowed {
			violations = append(violations, shared.FieldViolation{
				Field:   p.field,
				Rule:    RuleCannotLoosenPermission,
				Message: p.message,
			})
		}
	}

	return Result{
		Valid:      len(violations) == 0,
		Violations: violations,
	}
}

// Err превращает результат в доменную ошибку (nil, если изменение допустимо).
func (r Result) Err(op string) error {
	if r.Valid {
		return nil
	}
	return shared.NewPolicyViolation("safety", op, r.Violations)
}

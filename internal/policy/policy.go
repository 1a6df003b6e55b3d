// Package policy decides section visibility per role. It is a pure
// function over the fixed role and section sets: no state, no side
// effects, re-evaluated on every navigation request and menu render.
package policy

import "github.com/olipack/olipack-go/internal/domain"

// Sections every role can open, regardless of authorization.
var universal = map[domain.Section]bool{
	domain.SectionAtelier: true,
	domain.SectionProfile: true,
}

var roleSections = map[domain.Role][]domain.Section{
	domain.RoleTechnician: {
		domain.SectionHome,
		domain.SectionDashboard,
		domain.SectionMLPredict,
		domain.SectionQualityControl,
		domain.SectionAdminControl,
		domain.SectionImpact,
	},
	domain.RoleCollector: {
		domain.SectionHome,
		domain.SectionDashboard,
		domain.SectionStrategy,
		domain.SectionImpact,
	},
	domain.RoleOilMill: {
		domain.SectionHome,
		domain.SectionDashboard,
		domain.SectionAssistant,
		domain.SectionImpact,
	},
}

// Visible reports whether the given role may open the given section.
// It is total: any unrecognized role sees only the home section.
func Visible(role domain.Role, section domain.Section) bool {
	if universal[section] {
		return true
	}
	if role == domain.RoleAdmin {
		return true
	}
	allowed, ok := roleSections[role]
	if !ok {
		return section == domain.SectionHome
	}
	for _, s := range allowed {
		if s == section {
			return true
		}
	}
	return false
}

// VisibleSections filters the full section list down to what the role
// may see, preserving menu order. Menu entries are filtered, never
// merely disabled.
func VisibleSections(role domain.Role) []domain.Section {
	out := make([]domain.Section, 0, len(domain.AllSections))
	for _, s := range domain.AllSections {
		if Visible(role, s) {
			out = append(out, s)
		}
	}
	return out
}

package domain

// Section identifies one of the fixed content panels of the shell.
type Section string

const (
	SectionHome           Section = "home"
	SectionDashboard      Section = "dashboard"
	SectionStrategy       Section = "strategy"
	SectionStudio         Section = "studio"
	SectionAssistant      Section = "assistant"
	SectionMLPredict      Section = "ml_predict"
	SectionQualityControl Section = "quality_control"
	SectionImpact         Section = "impact"
	SectionAdminControl   Section = "admin_control"
	SectionAtelier        Section = "atelier"
	SectionProfile        Section = "profile"
)

// AllSections lists every navigable section, in menu order.
var AllSections = []Section{
	SectionHome,
	SectionDashboard,
	SectionMLPredict,
	SectionImpact,
	SectionStrategy,
	SectionStudio,
	SectionAssistant,
	SectionQualityControl,
	SectionAdminControl,
	SectionAtelier,
	SectionProfile,
}

// ParseSection validates an external section identifier.
func ParseSection(s string) (Section, bool) {
	for _, sec := range AllSections {
		if Section(s) == sec {
			return sec, true
		}
	}
	return "", false
}

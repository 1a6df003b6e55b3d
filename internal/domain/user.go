// Package domain holds the core types of the OliPack shell:
// user profiles, roles, sections, session state and typed errors.
package domain

// Role determines which sections a user can see.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleTechnician Role = "TECHNICIAN"
	RoleCollector  Role = "COLLECTOR"
	RoleOilMill    Role = "OIL_MILL" // default partner role
)

// ParseRole coerces an external role string into one of the four known
// roles. Anything unrecognized (including empty) falls back to OIL_MILL so
// an arbitrary string never flows into internal state.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleTechnician, RoleCollector, RoleOilMill:
		return Role(s)
	}
	return RoleOilMill
}

// JobTitle is the display label derived from the role. It is recomputed
// whenever a profile is formatted, never stored authoritatively.
func (r Role) JobTitle() string {
	if r == RoleAdmin {
		return "Administrator"
	}
	return "OliPack Partner"
}

// UserProfile is the canonical identity + authorization record.
// Password is only populated on sign-up/sign-in requests and is stripped
// before the profile becomes session state.
type UserProfile struct {
	ID         string `json:"id,omitempty"`
	Email      string `json:"email"`
	Password   string `json:"password,omitempty"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Role       Role   `json:"role"`
	NationalID string `json:"nationalId"`
	Phone      string `json:"phone"`
	JobTitle   string `json:"jobTitle"`
}

// WithoutSecret returns a copy safe to keep as session state or persist
// in the local mirror.
func (u UserProfile) WithoutSecret() UserProfile {
	u.Password = ""
	return u
}

// ProfilePatch carries the only profile fields that are mutable after
// account creation. Role and email are immutable.
type ProfilePatch struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	NationalID string `json:"nationalId"`
	Phone      string `json:"phone"`
}

// IsEmpty reports whether the patch would change nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.FirstName == "" && p.LastName == "" && p.NationalID == "" && p.Phone == ""
}

// ProfileRecord is a row of the remote profiles table, keyed by the
// identity provider's user id.
type ProfileRecord struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       string `json:"role"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
}

// RemoteIdentity is the validated shape of an identity-provider user.
// Metadata carries whatever profile hints were attached at sign-up;
// AccessToken (when present) can be decoded for the same hints.
type RemoteIdentity struct {
	ID          string
	Email       string
	Metadata    map[string]any
	AccessToken string
}

package domain

// SubjectType classifies an authenticated caller.
type SubjectType string

const (
	SubjectTypeUser  SubjectType = "END_USER"
	SubjectTypeStaff SubjectType = "STAFF"
)

// StaffRole enumerates support-staff roles carried in platform tokens.
type StaffRole string

const (
	StaffRoleSupport StaffRole = "SUPPORT"
	StaffRoleAdmin   StaffRole = "ADMIN"
)

// Actor is the identity performing an operation, as resolved from the
// request principal.
type Actor struct {
	Type      SubjectType
	UUID      string
	FirstName string
	Role      *StaffRole
}

// IsStaff reports whether the actor may perform staff-only operations.
func (a *Actor) IsStaff() bool {
	return a != nil && a.Type == SubjectTypeStaff && a.Role != nil
}

// DisplayName returns the value recorded in feed-entry blame fields.
func (a *Actor) DisplayName() string {
	if a == nil {
		return "unknown"
	}
	if a.FirstName != "" {
		return a.FirstName
	}
	return a.UUID
}

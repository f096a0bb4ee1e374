package models

// Role distinguishes the two kinds of principals
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleCompany Role = "COMPANY"
)

// User is the authenticated principal passed explicitly into every
// lifecycle operation. CompanyID is empty for students.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
}

// IsStudent returns true for student principals
func (u *User) IsStudent() bool {
	return u != nil && u.Role == RoleStudent
}

// IsCompanyMember returns true if the user belongs to the given company
func (u *User) IsCompanyMember(companyID string) bool {
	return u != nil && u.Role == RoleCompany && u.CompanyID == companyID && companyID != ""
}

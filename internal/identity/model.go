package identity

import "time"

// User is a registered wallet owner.
type User struct {
	ID           string
	Email        string
	Phone        string
	FullName     string
	PasswordHash []byte
	PINHash      []byte
	Status       string
	CreatedAt    time.Time
}

// Role partitions admin privileges.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleOpsAdmin     Role = "ops_admin"
	RoleFinanceAdmin Role = "finance_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleOpsAdmin, RoleFinanceAdmin:
		return true
	}
	return false
}

// Admin is a back-office operator. Admins never own wallets.
type Admin struct {
	ID           string
	Username     string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// HasPIN reports whether the user has set a transaction PIN.
func (u User) HasPIN() bool {
	return len(u.PINHash) > 0
}

// Registration captures the data needed to onboard a user.
type Registration struct {
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	FullName string `json:"full_name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8"`
	PIN      string `json:"pin" validate:"required,len=6,numeric"`
}

type pinChange struct {
	PIN string `json:"pin" validate:"required,len=6,numeric"`
}

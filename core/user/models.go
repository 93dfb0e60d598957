package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/ellahos/ellahos/core"
)

// User is a tenant profile able to log in.
type User struct {
	ID           string     `json:"id" db:"id"`
	TenantID     string     `json:"tenant_id" db:"tenant_id"`
	Email        string     `json:"email" db:"email"`
	FullName     string     `json:"full_name" db:"full_name"`
	Phone        *string    `json:"phone" db:"phone"`
	Role         string     `json:"role" db:"role"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	PasswordHash []byte     `json:"-" db:"password_hash"`
	LastLogin    *time.Time `json:"last_login" db:"last_login"` // UTC
	CreatedAt    time.Time  `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsManager() bool {
	return core.StringIn(u.Role, core.ManagerRoles)
}

// Actor returns the request actor this User acts as.
func (u User) Actor() core.Actor {
	return core.Actor{UserID: u.ID, TenantID: u.TenantID, Email: u.Email, Role: u.Role}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	FullName        string  `json:"full_name" validate:"required,max=200"`
	Email           string  `json:"email" validate:"required,email"`
	Phone           *string `json:"phone" validate:"omitempty,min=10,max=20"`
	Role            string  `json:"role" validate:"omitempty,role"`
	Password        string  `json:"password" validate:"required"`
	PasswordConfirm string  `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.FullName = core.CleanString(nu.FullName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if nu.Role == "" {
		nu.Role = core.RoleFreelancer
	}
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FullName        *string `json:"full_name" validate:"omitempty,min=1,max=200"`
	Phone           *string `json:"phone" validate:"omitempty,min=10,max=20"`
	Role            *string `json:"role" validate:"omitempty,role"`
	IsActive        *bool   `json:"is_active"`
	Password        string  `json:"password" validate:"omitempty"`
	PasswordConfirm string  `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`

	// set by Validate, used by the password policy
	email string
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	if uu.FullName != nil {
		name := core.CleanString(*uu.FullName)
		uu.FullName = &name
	}
	uu.email = origUsr.Email
	return validate.Struct(uu)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search   string `query:"search"`
	Role     string `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

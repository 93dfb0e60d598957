package person

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
)

// SortFields are the sortable list columns.
var SortFields = []string{"full_name", "default_role", "default_rate", "created_at", "updated_at"}

// BankInfo is stored as JSONB.
type BankInfo struct {
	BankName    string `json:"bank_name,omitempty"`
	Agency      string `json:"agency,omitempty"`
	Account     string `json:"account,omitempty"`
	AccountType string `json:"account_type,omitempty" validate:"omitempty,oneof=corrente poupanca"`
	PixKey      string `json:"pix_key,omitempty"`
	PixType     string `json:"pix_type,omitempty" validate:"omitempty,oneof=cpf email telefone chave_aleatoria"`
}

// Person is an internal collaborator or a freelancer that can be staffed on jobs.
type Person struct {
	ID          string       `json:"id" db:"id"`
	TenantID    string       `json:"tenant_id" db:"tenant_id"`
	ProfileID   *string      `json:"profile_id" db:"profile_id"`
	FullName    string       `json:"full_name" db:"full_name"`
	CPF         *string      `json:"cpf" db:"cpf"`
	RG          *string      `json:"rg" db:"rg"`
	BirthDate   *string      `json:"birth_date" db:"birth_date"`
	DRT         *string      `json:"drt" db:"drt"`
	Email       *string      `json:"email" db:"email"`
	Phone       *string      `json:"phone" db:"phone"`
	Address     *string      `json:"address" db:"address"`
	City        *string      `json:"city" db:"city"`
	State       *string      `json:"state" db:"state"`
	CEP         *string      `json:"cep" db:"cep"`
	Profession  *string      `json:"profession" db:"profession"`
	DefaultRole *string      `json:"default_role" db:"default_role"`
	DefaultRate *float64     `json:"default_rate" db:"default_rate"`
	IsInternal  bool         `json:"is_internal" db:"is_internal"`
	IsActive    bool         `json:"is_active" db:"is_active"`
	BankInfo    core.JSONMap `json:"bank_info" db:"bank_info"`
	Notes       *string      `json:"notes" db:"notes"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// PersonData creates or updates a Person. Nil fields are left untouched on updates.
type PersonData struct {
	FullName    *string   `json:"full_name" validate:"omitempty,min=1,max=300"`
	ProfileID   *string   `json:"profile_id" validate:"omitempty,uuid"`
	CPF         *string   `json:"cpf" validate:"omitempty,max=14"`
	RG          *string   `json:"rg" validate:"omitempty,max=20"`
	BirthDate   *string   `json:"birth_date" validate:"omitempty,date"`
	DRT         *string   `json:"drt" validate:"omitempty,max=20"`
	Email       *string   `json:"email" validate:"omitempty,email"`
	Phone       *string   `json:"phone" validate:"omitempty,max=20"`
	Address     *string   `json:"address" validate:"omitempty,max=500"`
	City        *string   `json:"city" validate:"omitempty,max=100"`
	State       *string   `json:"state" validate:"omitempty,max=2"`
	CEP         *string   `json:"cep" validate:"omitempty,max=9"`
	Profession  *string   `json:"profession" validate:"omitempty,max=100"`
	DefaultRole *string   `json:"default_role" validate:"omitempty,teamrole"`
	DefaultRate *float64  `json:"default_rate" validate:"omitempty,min=0"`
	IsInternal  *bool     `json:"is_internal"`
	IsActive    *bool     `json:"is_active"`
	BankInfo    *BankInfo `json:"bank_info"`
	Notes       *string   `json:"notes" validate:"omitempty,max=5000"`
}

func (pd *PersonData) Validate(validate *validator.Validate, creating bool) error {
	if pd.FullName != nil {
		name := core.CleanString(*pd.FullName)
		pd.FullName = &name
	}
	if pd.Email != nil {
		email := core.CleanString(*pd.Email, true /* lower */)
		pd.Email = &email
	}
	if creating && core.StrVal(pd.FullName) == "" {
		return core.NewFieldError("full_name", "full_name e obrigatorio")
	}
	if !creating && pd.isEmpty() {
		return core.BadRequest("Nenhum campo para atualizar")
	}
	return validate.Struct(pd)
}

func (pd PersonData) isEmpty() bool {
	return pd == (PersonData{})
}

func (pd PersonData) apply(p *Person) {
	if pd.FullName != nil {
		p.FullName = *pd.FullName
	}
	core.Patch(&p.ProfileID, pd.ProfileID)
	core.Patch(&p.CPF, pd.CPF)
	core.Patch(&p.RG, pd.RG)
	core.Patch(&p.BirthDate, pd.BirthDate)
	core.Patch(&p.DRT, pd.DRT)
	core.Patch(&p.Email, pd.Email)
	core.Patch(&p.Phone, pd.Phone)
	core.Patch(&p.Address, pd.Address)
	core.Patch(&p.City, pd.City)
	core.Patch(&p.State, pd.State)
	core.Patch(&p.CEP, pd.CEP)
	core.Patch(&p.Profession, pd.Profession)
	core.Patch(&p.DefaultRole, pd.DefaultRole)
	core.Patch(&p.Notes, pd.Notes)
	if pd.DefaultRate != nil {
		p.DefaultRate = pd.DefaultRate
	}
	if pd.IsInternal != nil {
		p.IsInternal = *pd.IsInternal
	}
	if pd.IsActive != nil {
		p.IsActive = *pd.IsActive
	}
	if b := pd.BankInfo; b != nil {
		p.BankInfo = core.JSONMap{}
		for k, v := range map[string]string{
			"bank_name": b.BankName, "agency": b.Agency, "account": b.Account,
			"account_type": b.AccountType, "pix_key": b.PixKey, "pix_type": b.PixType,
		} {
			if v != "" {
				p.BankInfo[k] = v
			}
		}
	}
}

type QueryFilter struct {
	Search      string `query:"search"`
	DefaultRole string `query:"default_role"`
	IsInternal  *bool  `query:"is_internal"`
	IsActive    *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.DefaultRole = core.CleanString(qf.DefaultRole, true /* lower */)
}

package client

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
)

// SortFields are the sortable list columns.
var SortFields = []string{"name", "created_at", "updated_at"}

// Company holds the registration data shared by clients and agencies.
type Company struct {
	Name        string  `json:"name" db:"name"`
	TradingName *string `json:"trading_name" db:"trading_name"`
	CNPJ        *string `json:"cnpj" db:"cnpj"`
	Address     *string `json:"address" db:"address"`
	City        *string `json:"city" db:"city"`
	State       *string `json:"state" db:"state"`
	CEP         *string `json:"cep" db:"cep"`
	Website     *string `json:"website" db:"website"`
	Notes       *string `json:"notes" db:"notes"`
}

type Client struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Company
	Segment   *string   `json:"segment" db:"segment"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Agency struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Company
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Contact struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	ClientID  *string   `json:"client_id" db:"client_id"`
	AgencyID  *string   `json:"agency_id" db:"agency_id"`
	Name      string    `json:"name" db:"name"`
	Email     *string   `json:"email" db:"email"`
	Phone     *string   `json:"phone" db:"phone"`
	Role      *string   `json:"role" db:"role"`
	IsPrimary bool      `json:"is_primary" db:"is_primary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CompanyData is the writable part of Company. Nil fields are left untouched on updates.
type CompanyData struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=300"`
	TradingName *string `json:"trading_name" validate:"omitempty,max=300"`
	CNPJ        *string `json:"cnpj" validate:"omitempty,max=18"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	City        *string `json:"city" validate:"omitempty,max=100"`
	State       *string `json:"state" validate:"omitempty,max=2"`
	CEP         *string `json:"cep" validate:"omitempty,max=9"`
	Website     *string `json:"website" validate:"omitempty,max=500"`
	Notes       *string `json:"notes" validate:"omitempty,max=5000"`
}

func (d CompanyData) apply(c *Company) {
	if d.Name != nil {
		c.Name = core.CleanString(*d.Name)
	}
	core.Patch(&c.TradingName, d.TradingName)
	core.Patch(&c.CNPJ, d.CNPJ)
	core.Patch(&c.Address, d.Address)
	core.Patch(&c.City, d.City)
	core.Patch(&c.State, d.State)
	core.Patch(&c.CEP, d.CEP)
	core.Patch(&c.Website, d.Website)
	core.Patch(&c.Notes, d.Notes)
}

func (d *CompanyData) clean() {
	if d.Name != nil {
		name := core.CleanString(*d.Name)
		d.Name = &name
	}
}

// ClientData creates or updates a Client.
type ClientData struct {
	CompanyData
	Segment  *string `json:"segment" validate:"omitempty,segment"`
	IsActive *bool   `json:"is_active"`
}

func (cd *ClientData) Validate(validate *validator.Validate, creating bool) error {
	cd.clean()
	if creating && core.StrVal(cd.Name) == "" {
		return core.NewFieldError("name", "name e obrigatorio")
	}
	if !creating && cd.isEmpty() {
		return core.BadRequest("Nenhum campo para atualizar")
	}
	return validate.Struct(cd)
}

func (cd ClientData) isEmpty() bool {
	return cd.CompanyData == (CompanyData{}) && cd.Segment == nil && cd.IsActive == nil
}

func (cd ClientData) apply(c *Client) {
	cd.CompanyData.apply(&c.Company)
	core.Patch(&c.Segment, cd.Segment)
	if cd.IsActive != nil {
		c.IsActive = *cd.IsActive
	}
}

// AgencyData creates or updates an Agency.
type AgencyData struct {
	CompanyData
	IsActive *bool `json:"is_active"`
}

func (ad *AgencyData) Validate(validate *validator.Validate, creating bool) error {
	ad.clean()
	if creating && core.StrVal(ad.Name) == "" {
		return core.NewFieldError("name", "name e obrigatorio")
	}
	if !creating && ad.CompanyData == (CompanyData{}) && ad.IsActive == nil {
		return core.BadRequest("Nenhum campo para atualizar")
	}
	return validate.Struct(ad)
}

func (ad AgencyData) apply(a *Agency) {
	ad.CompanyData.apply(&a.Company)
	if ad.IsActive != nil {
		a.IsActive = *ad.IsActive
	}
}

// ContactData creates or updates a Contact. ClientID and AgencyID are only read on creation.
type ContactData struct {
	ClientID  *string `json:"client_id" validate:"omitempty,uuid"`
	AgencyID  *string `json:"agency_id" validate:"omitempty,uuid"`
	Name      *string `json:"name" validate:"omitempty,min=1,max=300"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	Role      *string `json:"role" validate:"omitempty,max=100"`
	IsPrimary *bool   `json:"is_primary"`
}

func (cd *ContactData) Validate(validate *validator.Validate, creating bool) error {
	if cd.Name != nil {
		name := core.CleanString(*cd.Name)
		cd.Name = &name
	}
	if cd.Email != nil {
		email := core.CleanString(*cd.Email, true /* lower */)
		cd.Email = &email
	}
	if creating {
		if core.StrVal(cd.Name) == "" {
			return core.NewFieldError("name", "name e obrigatorio")
		}
		if core.StrVal(cd.ClientID) == "" && core.StrVal(cd.AgencyID) == "" {
			return core.BadRequest("Informe client_id ou agency_id")
		}
	}
	return validate.Struct(cd)
}

func (cd ContactData) apply(c *Contact) {
	if cd.Name != nil {
		c.Name = *cd.Name
	}
	core.Patch(&c.Email, cd.Email)
	core.Patch(&c.Phone, cd.Phone)
	core.Patch(&c.Role, cd.Role)
	if cd.IsPrimary != nil {
		c.IsPrimary = *cd.IsPrimary
	}
}

type QueryFilter struct {
	Search   string `query:"search"`
	Segment  string `query:"segment"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Segment = core.CleanString(qf.Segment, true /* lower */)
}

type ContactFilter struct {
	ClientID string `query:"client_id"`
	AgencyID string `query:"agency_id"`
}

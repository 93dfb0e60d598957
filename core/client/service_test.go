package client

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

type memRepo struct {
	Repository

	clients  map[string]Client
	agencies map[string]Agency
	contacts map[string]Contact
}

func newMemRepo() *memRepo {
	return &memRepo{
		clients:  make(map[string]Client),
		agencies: make(map[string]Agency),
		contacts: make(map[string]Contact),
	}
}

func (r *memRepo) GetClient(_ context.Context, tenantID, id string) (Client, error) {
	if c, ok := r.clients[id]; ok && c.TenantID == tenantID {
		return c, nil
	}
	return Client{}, ErrNotFound
}

func (r *memRepo) CreateClient(_ context.Context, c Client) (Client, error) {
	c.ID = "c" + c.Name
	r.clients[c.ID] = c
	return c, nil
}

func (r *memRepo) UpdateClient(_ context.Context, c Client) (Client, error) {
	r.clients[c.ID] = c
	return c, nil
}

func (r *memRepo) GetAgency(_ context.Context, tenantID, id string) (Agency, error) {
	if a, ok := r.agencies[id]; ok && a.TenantID == tenantID {
		return a, nil
	}
	return Agency{}, ErrAgencyNotFound
}

func (r *memRepo) CreateContact(_ context.Context, c Contact) (Contact, error) {
	c.ID = "ct" + c.Name
	r.contacts[c.ID] = c
	return c, nil
}

func newTestValidator() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

func TestClientData_Validate(t *testing.T) {
	validate := newTestValidator()
	tests := []struct {
		name     string
		data     ClientData
		creating bool
		wantErr  bool
	}{
		{"name required", ClientData{}, true, true},
		{"blank name", ClientData{CompanyData: CompanyData{Name: core.StrPtr("  ")}}, true, true},
		{"bad segment", ClientData{CompanyData: CompanyData{Name: core.StrPtr("Acme")}, Segment: core.StrPtr("x")}, true, true},
		{"ok", ClientData{CompanyData: CompanyData{Name: core.StrPtr("Acme")}, Segment: core.StrPtr("varejo")}, true, false},
		{"empty update", ClientData{}, false, true},
		{"update", ClientData{IsActive: new(bool)}, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.data.Validate(validate, tc.creating)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_CreateAndUpdateClient(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	c, err := svc.Create(ctx, "t1", ClientData{CompanyData: CompanyData{
		Name:        core.StrPtr(" Acme "),
		TradingName: core.StrPtr("Acme LTDA"),
		City:        core.StrPtr(""),
	}})
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)
	assert.True(t, c.IsActive)
	assert.Equal(t, "Acme LTDA", core.StrVal(c.TradingName))
	assert.Nil(t, c.City)

	c, err = svc.Update(ctx, "t1", c.ID, ClientData{CompanyData: CompanyData{TradingName: core.StrPtr("")}, Segment: core.StrPtr("moda")})
	require.NoError(t, err)
	assert.Nil(t, c.TradingName, "blank strings clear the field")
	assert.Equal(t, "moda", core.StrVal(c.Segment))
	assert.Equal(t, "Acme", c.Name)

	_, err = svc.Update(ctx, "t2", c.ID, ClientData{Segment: core.StrPtr("moda")})
	assert.True(t, core.IsNotFound(err))
}

func TestService_CreateContact(t *testing.T) {
	repo := newMemRepo()
	repo.clients["c1"] = Client{ID: "c1", TenantID: "t1"}
	svc := NewService(repo)
	ctx := context.Background()

	ct, err := svc.CreateContact(ctx, "t1", ContactData{ClientID: core.StrPtr("c1"), Name: core.StrPtr("Ana")})
	require.NoError(t, err)
	assert.Equal(t, "c1", core.StrVal(ct.ClientID))
	assert.Nil(t, ct.AgencyID)

	_, err = svc.CreateContact(ctx, "t1", ContactData{AgencyID: core.StrPtr("a9"), Name: core.StrPtr("Bia")})
	assert.Equal(t, ErrAgencyNotFound, err)

	err = (&ContactData{Name: core.StrPtr("Bia")}).Validate(newTestValidator(), true)
	assert.Error(t, err)
}

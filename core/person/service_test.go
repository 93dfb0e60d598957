package person

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

	people map[string]Person
}

func (r *memRepo) GetPerson(_ context.Context, tenantID, id string) (Person, error) {
	if p, ok := r.people[id]; ok && p.TenantID == tenantID {
		return p, nil
	}
	return Person{}, ErrNotFound
}

func (r *memRepo) CreatePerson(_ context.Context, p Person) (Person, error) {
	p.ID = "p" + p.FullName
	r.people[p.ID] = p
	return p, nil
}

func (r *memRepo) UpdatePerson(_ context.Context, p Person) (Person, error) {
	r.people[p.ID] = p
	return p, nil
}

func TestPersonData_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	tests := []struct {
		name     string
		data     PersonData
		creating bool
		wantErr  bool
	}{
		{"full_name required", PersonData{Email: core.StrPtr("a@b.com")}, true, true},
		{"bad role", PersonData{FullName: core.StrPtr("Ana"), DefaultRole: core.StrPtr("astronauta")}, true, true},
		{"bad date", PersonData{FullName: core.StrPtr("Ana"), BirthDate: core.StrPtr("01/02/1990")}, true, true},
		{"bad pix type", PersonData{FullName: core.StrPtr("Ana"), BankInfo: &BankInfo{PixType: "x"}}, true, true},
		{"negative rate", PersonData{FullName: core.StrPtr("Ana"), DefaultRate: func() *float64 { v := -1.0; return &v }()}, true, true},
		{"ok", PersonData{FullName: core.StrPtr("Ana"), DefaultRole: core.StrPtr("diretor"), BirthDate: core.StrPtr("1990-02-01")}, true, false},
		{"empty update", PersonData{}, false, true},
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

func TestService_CreateUpdate(t *testing.T) {
	repo := &memRepo{people: make(map[string]Person)}
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "t1", PersonData{
		FullName: core.StrPtr("Ana"),
		BankInfo: &BankInfo{PixKey: "ana@pix.com", PixType: "email"},
	})
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.False(t, p.IsInternal)
	assert.Equal(t, core.JSONMap{"pix_key": "ana@pix.com", "pix_type": "email"}, p.BankInfo)

	internal := true
	p, err = svc.Update(ctx, "t1", p.ID, PersonData{IsInternal: &internal, Phone: core.StrPtr("11999990000")})
	require.NoError(t, err)
	assert.True(t, p.IsInternal)
	assert.Equal(t, "Ana", p.FullName)
	assert.Equal(t, "11999990000", core.StrVal(p.Phone))

	_, err = svc.Update(ctx, "t2", p.ID, PersonData{IsInternal: &internal})
	assert.Equal(t, ErrNotFound, err)
}

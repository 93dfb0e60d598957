package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/person"
)

const personColumns = `id, tenant_id, profile_id, full_name, cpf, rg, to_char(birth_date, 'YYYY-MM-DD') AS birth_date, drt,
	email, phone, address, city, state, cep, profession, default_role, default_rate, is_internal, is_active,
	bank_info, notes, created_at, updated_at`

type personRepository struct {
	exec core.DBExecutor
}

var _ person.Repository = (*personRepository)(nil) // interface compliance check

func NewPersonRepository(exec core.DBExecutor) person.Repository {
	return &personRepository{exec: exec}
}

func (repo *personRepository) FilterPeople(ctx context.Context, tenantID string, filter person.QueryFilter, p core.PageParams) ([]person.Person, int, error) {
	w := newWhere("tenant_id = ? AND deleted_at IS NULL", tenantID).
		andIf(filter.Search != "", "(full_name ILIKE ? OR email ILIKE ?)", like(filter.Search), like(filter.Search)).
		andIf(filter.DefaultRole != "", "default_role = ?", filter.DefaultRole)
	if filter.IsInternal != nil {
		w.and("is_internal = ?", *filter.IsInternal)
	}
	if filter.IsActive != nil {
		w.and("is_active = ?", *filter.IsActive)
	}

	people := make([]person.Person, 0)
	total, err := page(ctx, repo.exec, &people, personColumns, "people", w, p, "")
	return people, total, errors.Wrap(err, "filtering people")
}

func (repo *personRepository) GetPerson(ctx context.Context, tenantID, id string) (person.Person, error) {
	var p person.Person
	err := repo.exec.GetContext(ctx, &p,
		`SELECT `+personColumns+` FROM people WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
	return p, trapNoRows(err, person.ErrNotFound, "selecting person")
}

func (repo *personRepository) CreatePerson(ctx context.Context, p person.Person) (person.Person, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := repo.exec.NamedExecContext(ctx, `
		INSERT INTO people (id, tenant_id, profile_id, full_name, cpf, rg, birth_date, drt, email, phone, address, city,
			state, cep, profession, default_role, default_rate, is_internal, is_active, bank_info, notes, created_at, updated_at)
		VALUES (:id, :tenant_id, :profile_id, :full_name, :cpf, :rg, :birth_date, :drt, :email, :phone, :address, :city,
			:state, :cep, :profession, :default_role, :default_rate, :is_internal, :is_active, :bank_info, :notes, :created_at, :updated_at)`,
		p)
	if err != nil {
		return person.Person{}, mapWriteErr(err, "inserting person")
	}
	return p, nil
}

func (repo *personRepository) UpdatePerson(ctx context.Context, p person.Person) (person.Person, error) {
	res, err := repo.exec.NamedExecContext(ctx, `
		UPDATE people
		SET profile_id = :profile_id, full_name = :full_name, cpf = :cpf, rg = :rg, birth_date = :birth_date, drt = :drt,
			email = :email, phone = :phone, address = :address, city = :city, state = :state, cep = :cep,
			profession = :profession, default_role = :default_role, default_rate = :default_rate,
			is_internal = :is_internal, is_active = :is_active, bank_info = :bank_info, notes = :notes, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id AND deleted_at IS NULL`,
		p)
	if err != nil {
		return person.Person{}, mapWriteErr(err, "updating person")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return person.Person{}, person.ErrNotFound
	}
	return p, nil
}

func (repo *personRepository) DeletePerson(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, repo.exec, "people", tenantID, id, time.Now().UTC(), person.ErrNotFound)
}

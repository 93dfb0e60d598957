package inmemdb

import (
	"sort"
	"strings"
	"sync"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/person"
	"github.com/ellahos/ellahos/core/tenant"
	"github.com/ellahos/ellahos/core/user"
)

type (
	// DB keeps tenants, profiles and people in maps. It backs the API and CLI tests.
	DB struct {
		tenant *tenantTable
		user   *userTable
		person *personTable
	}

	tenantTable struct {
		table   map[string]*tenant.Tenant
		secrets map[string]string // tenantID/name -> encrypted value
		mutex   sync.RWMutex
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	personTable struct {
		table map[string]*person.Person
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		tenant: &tenantTable{table: make(map[string]*tenant.Tenant), secrets: make(map[string]string)},
		user:   &userTable{table: make(map[string]*user.User)},
		person: &personTable{table: make(map[string]*person.Person)},
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.tenant.mutex.Lock()
	db.tenant.table = make(map[string]*tenant.Tenant)
	db.tenant.secrets = make(map[string]string)
	db.tenant.mutex.Unlock()

	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.person.mutex.Lock()
	db.person.table = make(map[string]*person.Person)
	db.person.mutex.Unlock()
}

// paginate returns the requested window of n sorted rows as [from, to) indexes.
func paginate(n int, p core.PageParams) (int, int) {
	from := p.Offset()
	if from > n {
		from = n
	}
	to := from + p.PerPage
	if to > n {
		to = n
	}
	return from, to
}

// sortBy orders rows with `less` following p.SortOrder; ties keep insertion order.
func sortBy(n int, swap func(i, j int), less func(i, j int) bool, p core.PageParams) {
	sort.Stable(sorter{n: n, swap: swap, less: func(i, j int) bool {
		if p.SortOrder == "asc" {
			return less(i, j)
		}
		return less(j, i)
	}})
}

type sorter struct {
	n    int
	swap func(i, j int)
	less func(i, j int) bool
}

func (s sorter) Len() int           { return s.n }
func (s sorter) Swap(i, j int)      { s.swap(i, j) }
func (s sorter) Less(i, j int) bool { return s.less(i, j) }

func contains(s *string, sub string) bool {
	return s != nil && strings.Contains(strings.ToLower(*s), sub)
}

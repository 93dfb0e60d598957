package core

// Profile roles.
const (
	RoleAdmin             = "admin"
	RoleCEO               = "ceo"
	RoleProdutorExecutivo = "produtor_executivo"
	RoleCoordenador       = "coordenador"
	RoleDiretor           = "diretor"
	RoleFinanceiro        = "financeiro"
	RoleAtendimento       = "atendimento"
	RoleComercial         = "comercial"
	RoleFreelancer        = "freelancer"
)

var (
	AllRoles = []string{
		RoleAdmin, RoleCEO, RoleProdutorExecutivo, RoleCoordenador, RoleDiretor, RoleFinanceiro, RoleAtendimento,
		RoleComercial, RoleFreelancer,
	}
	ManagerRoles   = []string{RoleAdmin, RoleCEO}
	FinancialRoles = []string{RoleAdmin, RoleCEO, RoleProdutorExecutivo, RoleFinanceiro}
	PaymentRoles   = []string{RoleAdmin, RoleCEO, RoleFinanceiro}
	BudgetRoles    = []string{RoleAdmin, RoleCEO, RoleProdutorExecutivo}
)

// Actor is the authenticated user behind a request.
type Actor struct {
	UserID   string
	TenantID string
	Email    string
	Role     string
}

func (a Actor) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if a.Role == role {
			return true
		}
	}
	return false
}

// System is the actor used by background workers.
func System(tenantID string) Actor {
	return Actor{TenantID: tenantID, Role: "system"}
}

func IsValidRole(role string) bool {
	return StringIn(role, AllRoles)
}

package user

import (
	"context"
	"net/http"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

var (
	// errors
	ErrNotFound             = core.NotFound("Usuario nao encontrado")
	ErrEmailExists          = core.Conflict("Ja existe um usuario com este email")
	ErrAuthenticationFailed = core.NewAppError(core.CodeUnauthorized, "Email ou senha invalidos", http.StatusUnauthorized)
	ErrAccountDeactivated   = core.Forbidden("Conta desativada")
	ErrInvalidResetLink     = core.BadRequest("Link de redefinicao de senha invalido ou expirado")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields, within a tenant.
		// QueryFilter.Search does a case-insensitive match on one of User.FullName or User.Email.
		FilterUsers(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]User, int, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		SetLastLogin(ctx context.Context, id string, at time.Time) error
		// ProfileIDsByRoles returns the active profiles of a tenant holding one of `roles`.
		ProfileIDsByRoles(ctx context.Context, tenantID string, roles ...string) ([]string, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		tokens  tokenGenerator
		sync    bool // send mails synchronously (tests)
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		tokens:  newTokenGenerator(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
	}
}

// Authenticate checks the credentials and stamps the last login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	now := time.Now().UTC()
	if err = svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	usr.LastLogin = &now
	return usr, nil
}

func (svc *Service) Create(ctx context.Context, tenantID string, nu NewUser) (User, error) {
	if _, err := svc.repo.GetUserByEmail(ctx, nu.Email); err == nil {
		return User{}, ErrEmailExists
	} else if !core.IsNotFound(err) {
		return User{}, errors.Wrap(err, "checking email uniqueness")
	}

	now := time.Now().UTC()
	usr := User{
		TenantID:  tenantID,
		Email:     nu.Email,
		FullName:  nu.FullName,
		Phone:     nu.Phone,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

// GetInTenant returns the User only when it belongs to the tenant.
func (svc *Service) GetInTenant(ctx context.Context, tenantID, id string) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if usr.TenantID != tenantID {
		return User{}, ErrNotFound
	}
	return usr, nil
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Query(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]User, int, error) {
	filter.Clean()
	return svc.repo.FilterUsers(ctx, tenantID, filter, page)
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if uu.FullName != nil {
		usr.FullName = *uu.FullName
	}
	if uu.Phone != nil {
		usr.Phone = uu.Phone
	}
	if uu.Role != nil {
		usr.Role = *uu.Role
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword is used by the admin CLI.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return errors.Wrap(err, "finding user by email")
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// ProfileIDsByRoles lists the profiles to notify for tenant-wide alerts.
func (svc *Service) ProfileIDsByRoles(ctx context.Context, tenantID string, roles ...string) ([]string, error) {
	return svc.repo.ProfileIDsByRoles(ctx, tenantID, roles...)
}

// RequestPasswordReset mails a reset link to active users. Unknown emails return ErrNotFound.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	msg := svc.passwordResetMail(usr)
	if svc.sync {
		svc.mailSvc.SendMessages(msg)
		return nil
	}
	go svc.mailSvc.SendMessages(msg)
	return nil
}

func (svc *Service) passwordResetMail(usr User) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Redefinicao de senha",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.FullName,
			"UID":   EncodeUID(usr),
			"Token": svc.tokens.makeToken(usr),
		},
	}
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := decodeUID(data.UID)
	if err != nil {
		return ErrInvalidResetLink
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return ErrInvalidResetLink
		}
		return errors.Wrap(err, "finding user by id")
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		return ErrInvalidResetLink
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// NewServiceMock returns a Service sending mails synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	svc := NewService(repo, mailSvc, conf)
	svc.sync = true
	return svc
}

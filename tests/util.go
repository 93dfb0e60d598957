package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/person"
	"github.com/ellahos/ellahos/core/user"
)

// NewConfig returns the configuration used by the API tests.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Debug = false
	conf.SecretKey = "test-secret-key"
	conf.Integrations.CronSecret = "cron-secret"
	conf.Integrations.WhatsAppWebhookSecret = "webhook-secret"
	conf.Server.PublicRateLimit = 1
	return conf
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	tenantID, name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		TenantID:  tenantID,
		FullName:  name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreatePerson(t *testing.T, repo person.Repository, tenantID, name string, createdAt time.Time) person.Person {
	p, err := repo.CreatePerson(context.Background(), person.Person{
		TenantID:  tenantID,
		FullName:  name,
		IsActive:  true,
		BankInfo:  core.JSONMap{},
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
	})
	if err != nil {
		t.Fatalf("CreatePerson() failed: %v", err)
	}
	return p
}

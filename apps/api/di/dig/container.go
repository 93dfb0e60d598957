package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/ellahos/ellahos/apps/api/echo"
	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/ai"
	"github.com/ellahos/ellahos/core/allocation"
	"github.com/ellahos/ellahos/core/approval"
	"github.com/ellahos/ellahos/core/client"
	"github.com/ellahos/ellahos/core/dashboard"
	"github.com/ellahos/ellahos/core/financial"
	"github.com/ellahos/ellahos/core/integration"
	"github.com/ellahos/ellahos/core/job"
	"github.com/ellahos/ellahos/core/notification"
	"github.com/ellahos/ellahos/core/person"
	"github.com/ellahos/ellahos/core/portal"
	"github.com/ellahos/ellahos/core/report"
	"github.com/ellahos/ellahos/core/tenant"
	"github.com/ellahos/ellahos/core/user"
	claudesvc "github.com/ellahos/ellahos/services/claude"
	"github.com/ellahos/ellahos/services/crypto"
	emailsvc "github.com/ellahos/ellahos/services/email"
	logsvc "github.com/ellahos/ellahos/services/logger"
	"github.com/ellahos/ellahos/services/realtime"
	"github.com/ellahos/ellahos/services/storage"
	"github.com/ellahos/ellahos/services/webhook"
	"github.com/ellahos/ellahos/services/whatsapp"
	"github.com/ellahos/ellahos/storage/database"
	sqlxrepos "github.com/ellahos/ellahos/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	WorkerLoggerParam struct {
		dig.In
		Logger core.Logger `name:"workerLogger"`
	}

	// ServerParams collects every dependency of the API server.
	ServerParams struct {
		dig.In

		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc         *user.Service
		TenantSvc       *tenant.Service
		ClientSvc       *client.Service
		PersonSvc       *person.Service
		JobSvc          *job.Service
		AllocationSvc   *allocation.Service
		FinancialSvc    *financial.Service
		ApprovalSvc     *approval.Service
		PortalSvc       *portal.Service
		NotificationSvc *notification.Service
		IntegrationSvc  *integration.Service
		ReportSvc       *report.Service
		DashboardSvc    *dashboard.Service
		AISvc           *ai.Service
		Hub             *realtime.Hub
	}
)

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(logsvc.PrefixAPI), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger(logsvc.PrefixDB), conf)
}

func newWorkerLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger(logsvc.PrefixWorker), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newValidate() *validator.Validate {
	return validator.New()
}

// newTenantService binds the concrete clients to the tenant ports.
func newTenantService(repo tenant.Repository, cipher *crypto.AESCipher, wa *whatsapp.EvolutionClient, hooks *webhook.Poster) *tenant.Service {
	return tenant.NewService(repo, cipher, wa, hooks)
}

func newNotificationService(repo notification.Repository, hub *realtime.Hub, logger core.Logger) *notification.Service {
	return notification.NewService(repo, hub, logger)
}

func newIntegrationService(
	repo integration.Repository,
	settings *tenant.Service,
	wa *whatsapp.EvolutionClient,
	hooks *webhook.Poster,
	notifier *notification.Service,
	mailSvc core.EmailService,
	loggerParam WorkerLoggerParam,
) *integration.Service {
	return integration.NewService(repo, settings, wa, hooks, notifier, mailSvc, loggerParam.Logger)
}

func newJobService(
	repo job.Repository,
	notifier *notification.Service,
	events *integration.Service,
	logger core.Logger,
) *job.Service {
	return job.NewService(repo, notifier, events, logger)
}

func newFinancialService(repo financial.Repository, history *job.Service) *financial.Service {
	return financial.NewService(repo, history)
}

func newApprovalService(
	repo approval.Repository,
	notifier *notification.Service,
	events *integration.Service,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
) *approval.Service {
	return approval.NewService(repo, notifier, events, mailSvc, conf, logger)
}

func newPortalService(repo portal.Repository, notifier *notification.Service, conf *core.Config, logger core.Logger) *portal.Service {
	return portal.NewService(repo, notifier, conf, logger)
}

// newReportService leaves the archiver unset (not a typed nil) when no bucket is configured.
func newReportService(repo report.Repository, conf *core.Config, logger core.Logger) (*report.Service, error) {
	archiver, err := storage.NewS3Archiver(context.Background(), conf, logger)
	if err != nil {
		return nil, errors.Wrap(err, "setting up report archiver")
	}
	if archiver == nil {
		return report.NewService(repo, nil, logger), nil
	}
	return report.NewService(repo, archiver, logger), nil
}

func newAIService(repo ai.Repository, client *claudesvc.Client, logger core.Logger) *ai.Service {
	return ai.NewService(repo, client, logger)
}

func newServer(p ServerParams) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:            p.Conf,
		Logger:          p.Logger,
		Validate:        p.Validate,
		Translator:      p.Translator,
		DisableReqLogs:  !p.Conf.Debug,
		UserSvc:         p.UserSvc,
		TenantSvc:       p.TenantSvc,
		ClientSvc:       p.ClientSvc,
		PersonSvc:       p.PersonSvc,
		JobSvc:          p.JobSvc,
		AllocationSvc:   p.AllocationSvc,
		FinancialSvc:    p.FinancialSvc,
		ApprovalSvc:     p.ApprovalSvc,
		PortalSvc:       p.PortalSvc,
		NotificationSvc: p.NotificationSvc,
		IntegrationSvc:  p.IntegrationSvc,
		ReportSvc:       p.ReportSvc,
		DashboardSvc:    p.DashboardSvc,
		AISvc:           p.AISvc,
		Hub:             p.Hub,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	// config & ambient
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newWorkerLogger, dig.Name("workerLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newValidate))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(emailsvc.NewService))

	// outbound clients
	must(c.Provide(crypto.NewAESCipher))
	must(c.Provide(whatsapp.NewEvolutionClient))
	must(c.Provide(webhook.NewPoster))
	must(c.Provide(claudesvc.NewClient))
	must(c.Provide(realtime.NewHub))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewTenantRepository))
	must(c.Provide(sqlxrepos.NewClientRepository))
	must(c.Provide(sqlxrepos.NewPersonRepository))
	must(c.Provide(sqlxrepos.NewJobRepository))
	must(c.Provide(sqlxrepos.NewAllocationRepository))
	must(c.Provide(sqlxrepos.NewFinancialRepository))
	must(c.Provide(sqlxrepos.NewApprovalRepository))
	must(c.Provide(sqlxrepos.NewPortalRepository))
	must(c.Provide(sqlxrepos.NewNotificationRepository))
	must(c.Provide(sqlxrepos.NewIntegrationRepository))
	must(c.Provide(sqlxrepos.NewReportRepository))
	must(c.Provide(sqlxrepos.NewDashboardRepository))
	must(c.Provide(sqlxrepos.NewAIRepository))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(newTenantService))
	must(c.Provide(client.NewService))
	must(c.Provide(person.NewService))
	must(c.Provide(newNotificationService))
	must(c.Provide(newIntegrationService))
	must(c.Provide(newJobService))
	must(c.Provide(allocation.NewService))
	must(c.Provide(newFinancialService))
	must(c.Provide(newApprovalService))
	must(c.Provide(newPortalService))
	must(c.Provide(newReportService))
	must(c.Provide(dashboard.NewService))
	must(c.Provide(newAIService))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

// Visualize writes the dependency graph in DOT format.
func Visualize(c *dig.Container) error {
	return dig.Visualize(c, os.Stdout)
}

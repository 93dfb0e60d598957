package echoapi

import (
	"context"
	"net/http"
	"sync"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/rs/cors"

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
	"github.com/ellahos/ellahos/services/realtime"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

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

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
		// ShutdownSignal is closed when a handler hits a core.shutdown error.
		ShutdownSignal() <-chan struct{}
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		handler  http.Handler
		http     *http.Server
		auth     *authenticator
		shutdown chan struct{}
		once     sync.Once
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		auth:     newAuthenticator(opts.Conf),
		shutdown: make(chan struct{}),
	}
	s.setup()
	s.http = &http.Server{Addr: opts.Conf.Server.Address(), Handler: s.handler}
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)
	authed := []echo.MiddlewareFunc{jwt, actorMiddleware(s.opts.UserSvc)}
	public := newIPLimiter(conf.Server.PublicRateLimit).middleware()

	registerAuthAPI(v1, authed, s.auth, s.opts.UserSvc, s.opts.Validate)
	registerUserAPI(v1, authed, s.opts.UserSvc, s.opts.Validate)
	registerTenantAPI(v1, authed, s.opts.TenantSvc, s.opts.IntegrationSvc, s.opts.Validate)
	registerClientAPI(v1, authed, s.opts.ClientSvc, s.opts.Validate)
	registerPersonAPI(v1, authed, s.opts.PersonSvc, s.opts.Validate)
	registerJobAPI(v1, authed, s.opts.JobSvc, s.opts.Validate)
	registerAllocationAPI(v1, authed, s.opts.AllocationSvc, s.opts.Validate)
	registerFinancialAPI(v1, authed, s.opts.FinancialSvc, s.opts.Validate)
	registerApprovalAPI(v1, authed, public, s.opts.ApprovalSvc, s.opts.Validate)
	registerPortalAPI(v1, authed, public, s.opts.PortalSvc, s.opts.Validate)
	registerNotificationAPI(v1, authed, s.auth, s.opts.NotificationSvc, s.opts.UserSvc, s.opts.Hub, s.opts.Validate)
	registerIntegrationAPI(v1, authed, conf, s.opts.IntegrationSvc, s.opts.Validate)
	registerReportAPI(v1, authed, s.opts.ReportSvc)
	registerDashboardAPI(v1, authed, s.opts.DashboardSvc)
	registerAIAPI(v1, authed, s.opts.AISvc, s.opts.Logger)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: conf.Server.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Authorization", "Content-Type", "X-Client-Info", "Apikey", "X-Cron-Secret", "X-Webhook-Secret",
		},
		ExposedHeaders:   []string{"Content-Disposition", "X-Archive-Key"},
		AllowCredentials: true,
	}).Handler(s.app)
}

func (s *server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "listening")
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.handler.ServeHTTP(w, r)
}

func (s *server) ShutdownSignal() <-chan struct{} {
	return s.shutdown
}

func (s *server) signalShutdown() {
	s.once.Do(func() { close(s.shutdown) })
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "ELLAHOS API")
}

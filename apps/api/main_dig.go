package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // /debug/pprof on the debug server
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	dig_container "github.com/ellahos/ellahos/apps/api/di/dig"
	echoapi "github.com/ellahos/ellahos/apps/api/echo"
	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/integration"
	"github.com/ellahos/ellahos/core/user"
	"github.com/ellahos/ellahos/services/realtime"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		workerLoggerParam dig_container.WorkerLoggerParam,
		db *sqlx.DB,
		validate *validator.Validate,
		translator ut.Translator,
		hub *realtime.Hub,
		events *integration.Service,
		server echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)

		core.ParseEmailTemplates(conf, apiLogger)

		user.LoadCommonPasswords(conf, apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Error("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service, realtime hub and the integration processor

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			apiLogger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address()))
			return server.Start()
		})
		g.Go(func() error {
			return hub.Run(gctx)
		})
		g.Go(func() error {
			runProcessor(gctx, conf, events, workerLoggerParam.Logger)
			return nil
		})

		// =========================================================================
		// Shutdown

		g.Go(func() error {
			select {
			case <-gctx.Done():
				apiLogger.Info("Start shutdown...")
			case <-server.ShutdownSignal():
				apiLogger.Info("Integrity issue: start shutdown...")
				stop()
			}

			// give outstanding requests a deadline for completion
			sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Stop(sctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
				return err
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			apiLogger.Error(fmt.Sprintf("server error: %v", err), err)
		}
	}))
}

// runProcessor drains the integration queue every ProcessorInterval until ctx is done.
func runProcessor(ctx context.Context, conf *core.Config, events *integration.Service, logger core.Logger) {
	ticker := time.NewTicker(conf.Integrations.ProcessorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := events.ProcessBatch(ctx, conf.Integrations.ProcessorBatchSize)
			if err != nil {
				logger.Error(fmt.Sprintf("processing integration events: %v", err), err)
				continue
			}
			if res.Total > 0 {
				logger.Info(fmt.Sprintf("integration events: %d processed, %d failed", res.Processed, res.Failed))
			}
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

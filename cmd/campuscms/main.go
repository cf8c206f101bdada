// Command campuscms runs the college website backend: the application
// server with the public, auth and management APIs, and a second server
// for health probes and metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/campuscms/campuscms/pkg/api"
	"github.com/campuscms/campuscms/pkg/audit"
	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/config"
	"github.com/campuscms/campuscms/pkg/content"
	"github.com/campuscms/campuscms/pkg/departments"
	"github.com/campuscms/campuscms/pkg/jobs"
	"github.com/campuscms/campuscms/pkg/media"
	"github.com/campuscms/campuscms/pkg/middleware"
	"github.com/campuscms/campuscms/pkg/observability"
	"github.com/campuscms/campuscms/pkg/rbac"
	"github.com/campuscms/campuscms/pkg/search"
	"github.com/campuscms/campuscms/pkg/settings"
	"github.com/campuscms/campuscms/pkg/storage"
	"github.com/campuscms/campuscms/pkg/users"
	"github.com/campuscms/campuscms/pkg/webhooks"
)

var version = "dev"

func main() {
	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		boot.Fatalf("Server exited with error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	db, err := storage.ConnectPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db, logger); err != nil {
		return err
	}

	redisClient, err := storage.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
		storage.StartPoolStatsCollector(ctx, db, metrics, 15*time.Second)
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := observability.ShutdownOTel(shutdownCtx, otelProviders, logger); err != nil {
			logger.WithError(err).Warn("OpenTelemetry shutdown incomplete")
		}
	}()

	var meters *observability.OTelMeters
	if cfg.Observability.OTelEnabled {
		meters, err = observability.NewOTelMeters()
		if err != nil {
			return err
		}
	}

	// Stores and domain services.
	rbacStore := rbac.NewStore(db)
	if err := rbacStore.SeedBuiltInRoles(ctx); err != nil {
		return err
	}

	var subjectCache *rbac.SubjectCache
	if redisClient != nil {
		subjectCache = rbac.NewSubjectCache(redisClient, 5*time.Minute)
	}
	checker := rbac.NewChecker(rbacStore, subjectCache, metrics, meters, logger)

	userStore := users.NewStore(db)
	sessions := auth.NewSessionStore(db, cfg.Auth.SessionTTL)
	provisioner := auth.NewProvisioner(userStore, rbacStore, checker, cfg.Auth.DefaultRole, cfg.Auth.GroupMappings, logger)

	var oidcProvider *auth.OIDCProvider
	if cfg.OIDCEnabled() {
		oidcProvider, err = auth.NewOIDCProvider(ctx, &cfg.OIDC)
		if err != nil {
			return err
		}
	}
	var samlProvider *auth.SAMLProvider
	if cfg.SAMLEnabled() {
		samlProvider, err = auth.NewSAMLProvider(&cfg.SAML)
		if err != nil {
			return err
		}
	}

	contentStore := content.NewStore(db)
	publicCache, err := content.NewPublicCache(cfg.Server.PublicCacheSize, metrics)
	if err != nil {
		return err
	}

	auditStore := audit.NewStore(db)

	webhookStore := webhooks.NewStore(db)
	dispatcher := webhooks.NewDispatcher(ctx, webhookStore, 4, logger)
	defer func() {
		if err := dispatcher.Shutdown(10 * time.Second); err != nil {
			logger.WithError(err).Warn("webhook dispatcher shutdown incomplete")
		}
	}()

	var mediaHandlers *media.Handlers
	if cfg.MediaEnabled() {
		objects, err := media.NewS3Store(ctx, cfg.Media)
		if err != nil {
			return err
		}
		mediaHandlers = media.NewHandlers(media.NewStore(db), objects, cfg.Media.MaxUploadSize, metrics, logger)
	}

	var siteSettings *settings.Handlers
	if cfg.Settings.Path != "" {
		manager, err := settings.NewManager(cfg.Settings.Path, logger)
		if err != nil {
			return err
		}
		if err := manager.Watch(ctx); err != nil {
			return err
		}
		siteSettings = settings.NewHandlers(manager)
	}

	rateLimit := middleware.NewRateLimitWithRedis(redisClient)

	contentHandlers := content.NewHandlers(contentStore, publicCache, metrics, meters, logger)
	contentHandlers.SetNotifier(dispatcher)

	server := api.NewServer(api.Deps{
		Logger:      logger,
		Metrics:     metrics,
		SessionAuth: middleware.NewSessionAuth(sessions, provisioner, logger),
		Authorizer:  middleware.NewAuthorizer(metrics, meters),
		RateLimit:   rateLimit,
		Audit:       audit.NewMiddleware(auditStore, logger),

		Auth:        auth.NewHandlers(oidcProvider, samlProvider, sessions, provisioner, cfg.Auth.SecureCookies, cfg.Auth.PostLoginURL, logger),
		Departments: departments.NewHandlers(departments.NewStore(db), metrics, logger),
		Content:     contentHandlers,
		Users:       users.NewHandlers(userStore, rbacStore, checker, logger),
		Roles:       rbac.NewHandlers(rbacStore, checker, logger),
		Media:       mediaHandlers,
		AuditLog:    audit.NewHandlers(auditStore, logger),
		Settings:    siteSettings,
		Webhooks:    webhooks.NewHandlers(webhookStore, logger),
		Search:      search.NewHandlers(search.NewStore(db), logger),
	})

	scheduler := jobs.NewScheduler(sessions, auditStore, contentStore, metrics, logger, 0)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	var appHandler http.Handler = server
	if cfg.Observability.OTelEnabled {
		appHandler = otelhttp.NewHandler(appHandler, "campuscms")
	}

	appServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      appHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: api.NewHealthHandler(observability.NewHealthChecker(db, redisClient, version), metrics),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", appServer.Addr).Info("application server listening")
		if err := appServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := appServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("application server shutdown incomplete")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/auth"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/challenge"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/config"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/db"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/http/api"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/mail"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/observability"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/ratelimit"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/realtime"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	internalsettings "github.com/router-for-me/ErrorMonitorBusiness/internal/settings"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/store"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/watcher"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultPort           = 8420
	settingsPollInterval  = 5 * time.Second
	serverShutdownTimeout = 10 * time.Second
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the monitoring API with database-backed components and
// blocks until ctx is cancelled or a component fails.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	serverCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return err
	}
	tokens, err := security.NewTokenIssuer(jwtCfg)
	if err != nil {
		return err
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	settingsWatcher := watcher.NewSettingsWatcher(conn, settingsPollInterval)
	if errStart := settingsWatcher.Start(ctx); errStart != nil {
		return errStart
	}
	defer func() {
		if errStop := settingsWatcher.Stop(); errStop != nil {
			log.WithError(errStop).Warn("app: stop settings watcher")
		}
	}()

	users := store.NewUserStore(conn)
	if errSeed := EnsureAdmin(ctx, users); errSeed != nil {
		return errSeed
	}
	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)
	if !initialized {
		log.Warn("app: no admin account yet, POST /v0/init/setup to create one")
	}

	mailer := mail.NewSender(serverCfg.SMTP)
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry)
	dispatcher.SetReportHook(logDeliveryReport)
	challenges := challenge.NewManager(users, mailer)
	limits := ratelimit.NewManager(ratelimit.SettingsWithRedisFallback(serverCfg.Redis), nil, nil)
	defer limits.Close()

	hub := realtime.NewHub(registry, tokens, serverCfg.Realtime)
	engine := newEngine(serverCfg)
	api.RegisterRoutes(engine, api.Dependencies{
		DB:           conn,
		Tokens:       tokens,
		Verifier:     auth.NewVerifier(users, internalsettings.TwoFactorRequired),
		Challenges:   challenges,
		Limits:       limits,
		Users:        users,
		Applications: store.NewApplicationStore(conn),
		ErrorLogs:    store.NewErrorLogStore(conn, dispatcher, mailer),
		Alerts:       store.NewAlertStore(conn, dispatcher, mailer),
		Audits:       store.NewAuditStore(conn),
		Registry:     registry,
		Hub:          hub,
	})
	registerInitRoutes(engine, conn, &initState)

	if port <= 0 {
		port = serverCfg.Port
	}
	if port <= 0 {
		port = defaultPort
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", strings.TrimSpace(serverCfg.Host), port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Shutdown)

	group, groupCtx := errgroup.WithContext(ctx)
	dispatcher.Start(groupCtx)
	defer dispatcher.Stop()

	group.Go(func() error {
		challenges.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		log.Infof("starting error monitor on %s with config=%s", srv.Addr, configPath)
		if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			return errListen
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Error("app: server shutdown")
		}
		return nil
	})
	return group.Wait()
}

// newEngine builds the gin engine with recovery and request logging.
func newEngine(cfg config.ServerConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(observability.RecoveryMiddleware())
	engine.Use(observability.RequestLogger())
	engine.Use(corsMiddleware())
	return engine
}

// logDeliveryReport records fan-outs that lost subscribers.
func logDeliveryReport(report realtime.Report) {
	if report.Failed == 0 {
		return
	}
	log.WithFields(log.Fields{
		"event":        report.Event,
		"group":        report.Group,
		"delivered":    report.Delivered,
		"failed":       report.Failed,
		"disconnected": len(report.Disconnected),
	}).Warn("realtime: delivery failures")
}

// registerInitRoutes exposes the first-run setup endpoints on the main server.
func registerInitRoutes(engine *gin.Engine, conn *gorm.DB, initState *atomic.Bool) {
	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initState.Load()})
	})
	engine.POST("/v0/init/setup", func(c *gin.Context) {
		if ok, errInit := HasAdminInitialized(conn); errInit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		} else if ok {
			initState.Store(true)
			c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
			return
		}

		var req AdminSetupRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}
		if errValidate := req.normalize(); errValidate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
			return
		}

		if errAdmin := CreateAdminUserWithConn(c.Request.Context(), conn, req.account(), req.SiteName); errAdmin != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
			return
		}
		initState.Store(true)
		c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	})
}

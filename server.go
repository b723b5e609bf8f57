package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"bitbucket.org/mmdatafocus/fieldservice_sync/fieldapi"
	"bitbucket.org/mmdatafocus/fieldservice_sync/middlewares"
	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
	"bitbucket.org/mmdatafocus/fieldservice_sync/techsync"
	"bitbucket.org/mmdatafocus/fieldservice_sync/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8787"

func main() {
	port := os.Getenv("FIELDSYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	client := fieldapi.NewClient()
	engine := techsync.NewEngine(client, logger)
	watcher := techsync.NewNetworkWatcher(client.HealthURL(), logger, func() {
		if _, err := engine.Reconcile(context.Background(), "", true, models.SyncTriggeredReconnect); err != nil {
			logger.WithFields(logrus.Fields{"field": "reconnect"}).Warn(err.Error())
		}
	})
	facade := techsync.NewFacade(client, watcher, logger)
	api := &techsync.API{
		Client:  client,
		Watcher: watcher,
		Engine:  engine,
		Facade:  facade,
		Logger:  logger,
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.SessionMiddleware())
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	// Session
	r.POST("/api/auth/login", api.LoginHandler())
	r.POST("/api/auth/unlock", api.UnlockHandler())
	r.POST("/api/auth/logout", api.LogoutHandler())

	// Sync
	r.GET("/api/sync/status", api.StatusHandler())
	r.POST("/api/sync/run", api.TriggerSyncHandler())
	r.GET("/api/sync/pending", api.PendingActionsHandler())
	r.GET("/api/sync/dead-letters", api.DeadLettersHandler())
	r.GET("/api/sync/runs", api.SyncRunsHandler())
	r.GET("/api/sync/report.xlsx", api.SyncReportHandler())
	r.DELETE("/api/sync/cache", api.ClearCacheHandler())

	// Work orders
	r.GET("/api/work-orders", api.ListWorkOrdersHandler())
	r.GET("/api/work-orders/:id", api.GetWorkOrderHandler())
	r.PATCH("/api/work-orders/:id/status", api.UpdateStatusHandler())
	r.PATCH("/api/work-orders/:id/checklist", api.UpdateChecklistHandler())
	r.PATCH("/api/work-orders/:id/observation", api.AddObservationHandler())
	r.POST("/api/work-orders/:id/photos", api.AddPhotoHandler())
	r.POST("/api/work-orders/:id/signature", api.SignContractHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	probeInterval := time.Duration(intFromEnv("SYNC_PROBE_INTERVAL_SECONDS", 30)) * time.Second
	go watcher.Run(sigCtx, probeInterval)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

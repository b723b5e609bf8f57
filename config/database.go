package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
	// Do NOT open the store in init(); main() decides when, after the local
	// HTTP server is listening, so the UI shell gets a readiness answer fast.
}

// DatabasePath resolves the device store location. The UI shell passes the
// app sandbox path via env; tests point this at a temp file.
func DatabasePath() string {
	path := strings.TrimSpace(os.Getenv("FIELDSYNC_DB_PATH"))
	if path == "" {
		path = "fieldsync.db"
	}
	return path
}

// ConnectDatabaseWithRetry opens the device store and sets the global DB.
// sqlite open only fails on a broken sandbox path or a locked file from a
// crashed process, both of which clear up on retry.
func ConnectDatabaseWithRetry() {
	dsn := "file:" + DatabasePath() + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

	var attempt int
	for {
		attempt++
		var err error
		db, err = gorm.Open(sqlite.Open(dsn), initConfig())
		if err == nil {
			// One writer at a time; sqlite serializes writes anyway and the
			// busy_timeout covers the queue-inspect tool holding a read.
			if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
				sqlDB.SetMaxOpenConns(intFromEnv("DB_MAX_OPEN_CONNS", 1))
				sqlDB.SetConnMaxIdleTime(time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second)
			}

			if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("store opened but failed to install otelgorm plugin: %v", pluginErr)
			}
			log.Printf("opened device store (attempt=%d)", attempt)
			return
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 4))
		if sleep > 15*time.Second {
			sleep = 15 * time.Second
		}
		log.Printf("failed to open device store (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
	return newLogger
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

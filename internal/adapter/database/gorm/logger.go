package gorm

import (
	"fmt"
	"strings"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/bikeshare/internal/config"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// NewGormLogger creates a gorm logger writing through the application logger.
func NewGormLogger(level string) gormlogger.Interface {
	var gormLevel gormlogger.LogLevel
	switch config.LogLevel(strings.ToUpper(level)) {
	case config.LogLevelError:
		gormLevel = gormlogger.Error
	case config.LogLevelWarn:
		gormLevel = gormlogger.Warn
	case config.LogLevelInfo, config.LogLevelDebug:
		gormLevel = gormlogger.Info
	default:
		gormLevel = gormlogger.Silent
	}

	return gormlogger.New(
		NewGormWriter(),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter redirects GORM log output to the application logger.
type GormWriter struct{}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements gormlogger.Writer. SQL traces go to DEBUG, everything else to INFO.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if isStatement(msg) {
		logger.Debugf("[GORM] %s", msg)
		return
	}
	logger.Infof("[GORM] %s", msg)
}

func isStatement(msg string) bool {
	if !strings.Contains(msg, "[") || !strings.Contains(msg, "]") {
		return false
	}
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.Contains(msg, verb) {
			return true
		}
	}
	return false
}

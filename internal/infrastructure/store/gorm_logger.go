package store

import (
	"fmt"
	"time"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/log"
	gormlogger "gorm.io/gorm/logger"
)

type zapWriter struct {
	l *log.Logger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.l.Warn(fmt.Sprintf(format, args...))
}

// newGormLogger routes slow queries and errors to the agent logger.
func newGormLogger(l *log.Logger) gormlogger.Interface {
	if l == nil {
		return gormlogger.Discard
	}
	return gormlogger.New(zapWriter{l: l.Named("gorm")}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

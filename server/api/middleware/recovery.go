package middleware

import (
	"fmt"

	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

// RecoveryLogger adapts Logger to gorilla/handlers' RecoveryHandlerLogger.
type RecoveryLogger struct {
	*logger.Logger
}

func NewRecoveryLogger(l *logger.Logger) *RecoveryLogger {
	return &RecoveryLogger{
		Logger: l,
	}
}

func (l *RecoveryLogger) Println(v ...interface{}) {
	l.Errorf(fmt.Sprintln(v...))
}

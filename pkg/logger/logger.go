package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var InfoLogger *zap.Logger

var (
	serviceName = "default"
)

type Config struct {
	Level       string
	Development bool
}

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// New builds the process logger and installs it behind the printf helpers.
func New(conf Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if conf.Level != "" {
		if err := level.Set(conf.Level); err != nil {
			return nil, fmt.Errorf("log level %q: %w", conf.Level, err)
		}
	}

	zc := zap.NewProductionConfig()
	if conf.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	l = l.With(zap.String("service", serviceName))

	InfoLogger = l
	return l, nil
}

func Info(format string, args ...interface{}) {
	get().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	get().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	get().Error(fmt.Sprintf(format, args...))
}

func get() *zap.Logger {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}
	return InfoLogger
}

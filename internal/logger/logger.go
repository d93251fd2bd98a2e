package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"listing_orchestrator/config"
)

// Manager manages application loggers and their underlying files.
type Manager struct {
	logger    *zap.Logger
	infoFile  *os.File
	errorFile *os.File
}

var global *Manager

// Initialize configures the global logger manager.
func Initialize(cfg *config.Config) (*Manager, error) {
	manager, err := New(cfg)
	if err != nil {
		return nil, err
	}
	global = manager
	return manager, nil
}

// New creates a new Manager instance. Info and above go to the output file and
// stdout; errors are additionally written to the error file and stderr.
func New(cfg *config.Config) (*Manager, error) {
	dir := cfg.LogDirectory
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	outputFile := cfg.LogOutputFile
	if outputFile == "" {
		outputFile = "app.log"
	}
	errorFile := cfg.LogErrorFile
	if errorFile == "" {
		errorFile = "app.error.log"
	}

	infoHandle, err := os.OpenFile(filepath.Join(dir, outputFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open info log file: %w", err)
	}

	errorHandle, err := os.OpenFile(filepath.Join(dir, errorFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		infoHandle.Close()
		return nil, fmt.Errorf("open error log file: %w", err)
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil && cfg.LogLevel != "" {
		infoHandle.Close()
		errorHandle.Close()
		return nil, fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
	}
	errorsOnly := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileEncoder := zapcore.NewJSONEncoder(encCfg)
	consoleEncoder := zapcore.NewConsoleEncoder(encCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(fileEncoder, zapcore.AddSync(infoHandle), level),
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(errorHandle), errorsOnly),
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), errorsOnly),
	)

	return &Manager{
		logger:    zap.New(core, zap.AddCaller()),
		infoFile:  infoHandle,
		errorFile: errorHandle,
	}, nil
}

// Logger returns the underlying zap logger.
func (m *Manager) Logger() *zap.Logger {
	return m.logger
}

// Close flushes and releases file handles.
func (m *Manager) Close() error {
	_ = m.logger.Sync()
	var firstErr error
	if m.infoFile != nil {
		if err := m.infoFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.errorFile != nil {
		if err := m.errorFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the global logger manager if initialized.
func Close() error {
	if global == nil {
		return nil
	}
	err := global.Close()
	global = nil
	return err
}

// L returns the global logger, or a no-op logger before Initialize.
func L() *zap.Logger {
	if global != nil {
		return global.logger
	}
	return zap.NewNop()
}

// Info logs at info level on the global logger.
func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }

// Warn logs at warn level on the global logger.
func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }

// Error logs at error level on the global logger.
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Debug logs at debug level on the global logger.
func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }

package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/fourmitrack/fourmitrack/internal/setup/telemetry/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// sessionLayout names session directories.
const sessionLayout = "2006-01-02_15-04-05"

// ServiceType represents the type of service being initialized.
type ServiceType int

const (
	ServiceWorker ServiceType = iota
	ServiceAdmin
	ServiceExport
)

// String returns the component name of the service.
func (s ServiceType) String() string {
	switch s {
	case ServiceWorker:
		return "worker"
	case ServiceAdmin:
		return "db"
	case ServiceExport:
		return "export"
	default:
		return "unknown"
	}
}

// Manager handles the creation and management of log files and directories.
// Every program run gets a timestamped session directory and a "latest"
// symlink pointing at it.
type Manager struct {
	instanceID        string
	componentName     string
	currentSessionDir string
	logDir            string
	level             string
	maxLogsToKeep     int
	maxLogLines       int
	forwardErrors     bool
	rotators          []*logger.Rotator
}

// NewManager creates a new Manager instance. A non-empty worker type is
// added to the component name.
func NewManager(serviceType ServiceType, logDir string, debugCfg *config.Debug, workerType string) *Manager {
	componentName := serviceType.String()
	if workerType != "" {
		componentName = workerType + "_" + componentName
	}

	return &Manager{
		instanceID:    uuid.New().String(),
		componentName: componentName,
		logDir:        logDir,
		level:         debugCfg.LogLevel,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
		maxLogLines:   debugCfg.MaxLogLines,
	}
}

// ForwardErrors makes every logger created afterwards record error entries
// as trace spans.
func (lm *Manager) ForwardErrors() {
	lm.forwardErrors = true
}

// GetLoggers initializes the main and database loggers.
func (lm *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	if err := lm.setupLogDirectories(); err != nil {
		return nil, nil, err
	}

	mainLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "main.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}

	dbLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "database.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}

	mainLogger = mainLogger.With(
		zap.String("component", lm.componentName),
		zap.String("instanceID", lm.instanceID),
	)

	return mainLogger, dbLogger, nil
}

// GetWorkerLogger creates a logger writing to its own file in the session directory.
func (lm *Manager) GetWorkerLogger(name string) *zap.Logger {
	logger, err := lm.initLogger(filepath.Join(lm.getOrCreateSessionDir(), name+".log"))
	if err != nil {
		return zap.NewNop()
	}

	return logger
}

// GetCurrentSessionDir returns the current session directory.
func (lm *Manager) GetCurrentSessionDir() string {
	return lm.getOrCreateSessionDir()
}

// GetInstanceID returns the unique identifier of this program run.
func (lm *Manager) GetInstanceID() string {
	return lm.instanceID
}

// Stop closes every log file opened by the manager.
func (lm *Manager) Stop() {
	for _, rotator := range lm.rotators {
		_ = rotator.Sync()
		_ = rotator.Close()
	}
	lm.rotators = nil
}

// setupLogDirectories creates the base directory, rotates old sessions and
// creates the new session directory.
func (lm *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(lm.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := lm.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	lm.currentSessionDir = filepath.Join(lm.logDir, time.Now().Format(sessionLayout))
	if err := os.MkdirAll(lm.currentSessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	latest := filepath.Join(lm.logDir, "latest")
	_ = os.Remove(latest)

	if err := os.Symlink(filepath.Base(lm.currentSessionDir), latest); err != nil {
		return fmt.Errorf("failed to link latest session: %w", err)
	}

	return nil
}

// getOrCreateSessionDir returns the current session directory, falling back
// to the base directory when none can be created.
func (lm *Manager) getOrCreateSessionDir() string {
	if lm.currentSessionDir != "" {
		return lm.currentSessionDir
	}

	sessionDir := filepath.Join(lm.logDir, time.Now().Format(sessionLayout))
	if err := os.MkdirAll(sessionDir, os.ModePerm); err != nil {
		return lm.logDir
	}
	lm.currentSessionDir = sessionDir

	return sessionDir
}

// initLogger creates a zap logger writing to the given file.
func (lm *Manager) initLogger(path string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(lm.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	rotator, err := logger.NewRotator(path, lm.maxLogLines)
	if err != nil {
		return nil, err
	}
	lm.rotators = append(lm.rotators, rotator)

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(rotator), zapLevel),
	}
	if lm.forwardErrors {
		cores = append(cores, NewCore(zapcore.ErrorLevel))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// rotateLogSessions removes the oldest sessions beyond maxLogsToKeep.
func (lm *Manager) rotateLogSessions() error {
	entries, err := os.ReadDir(lm.logDir)
	if err != nil {
		return err
	}

	var sessions []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse(sessionLayout, entry.Name()); err == nil {
			sessions = append(sessions, entry.Name())
		}
	}

	// Keep room for the session about to be created.
	keep := max(lm.maxLogsToKeep-1, 0)
	if len(sessions) <= keep {
		return nil
	}

	sort.Strings(sessions)

	for _, session := range sessions[:len(sessions)-keep] {
		if err := os.RemoveAll(filepath.Join(lm.logDir, session)); err != nil {
			return err
		}
	}

	return nil
}

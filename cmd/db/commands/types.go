package commands

import (
	"errors"

	"github.com/fourmitrack/fourmitrack/internal/database"
	"github.com/fourmitrack/fourmitrack/internal/fourmizzz"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var (
	ErrNameRequired          = errors.New("NAME argument required")
	ErrServerAndNameRequired = errors.New("SERVER and NAME arguments required")
	ErrSessionRequired       = errors.New("--session flag required")
)

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	DB        database.Client
	Migrator  *migrate.Migrator
	Fourmizzz *fourmizzz.Client
	Logger    *zap.Logger
}

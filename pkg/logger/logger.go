// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

// New builds the process logger. Every line carries the emitting service name so hook
// logs can be told apart from tagctl runs in aggregated output.
func New(env, service string) Sugared {
	var z *zap.Logger
	var err error
	if env == "prod" {
		z, err = zap.NewProduction()
	} else {
		z, err = zap.NewDevelopment()
	}
	if err != nil {
		z = zap.NewNop()
	}
	return z.Sugar().With("service", service)
}

// Nop returns a logger that discards everything; used by tests and the CLI quiet mode.
func Nop() Sugared { return zap.NewNop().Sugar() }

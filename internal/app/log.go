package app

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"docvault/internal/docs"
)

// newLogger creates a structured logger that writes to both
// logDir/docvault.log and stderr.
func newLogger(logDir string) (*zap.Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{
		filepath.Join(logDir, "docvault.log"),
		"stderr",
	}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// zapAdapter wraps *zap.SugaredLogger to satisfy the docs.Logger interface.
type zapAdapter struct {
	l *zap.SugaredLogger
}

func (a *zapAdapter) Debug(msg string, args ...any) { a.l.Debugw(msg, args...) }
func (a *zapAdapter) Info(msg string, args ...any)  { a.l.Infow(msg, args...) }
func (a *zapAdapter) Warn(msg string, args ...any)  { a.l.Warnw(msg, args...) }
func (a *zapAdapter) Error(msg string, args ...any) { a.l.Errorw(msg, args...) }

var _ docs.Logger = (*zapAdapter)(nil)

package config

import (
	"context"

	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/confwatch"
)

// Watch calls onChange with the re-loaded Config each time path is written,
// until ctx is cancelled. Invalid files are logged and skipped.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(*Config)) error {
	return confwatch.Watch(ctx, path, Load, log, onChange)
}

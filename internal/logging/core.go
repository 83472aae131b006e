// internal/logging/core.go
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
)

// newCore builds the zapcore.Core the gateway writes logs through: a
// JSON/console encoder over stdout, wrapped in level-aware sampling.
func newCore(cfg *Config) (zapcore.Core, error) {
	if !cfg.Output.Stdout {
		return nil, fmt.Errorf("at least one output must be enabled")
	}

	encoder := newEncoder(cfg.Format)
	writer := zapcore.AddSync(os.Stdout)
	core := zapcore.NewCore(encoder, writer, cfg.Level)

	return newSampledCore(core, cfg.Sampling), nil
}

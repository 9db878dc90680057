package providers

import "github.com/mcroberts-scholars/scholarship-harvester/internal/logger"

// Logger is the structured logger completers report calls to.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger { return logger.Ensure(log) }

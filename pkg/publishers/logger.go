package publishers

import "github.com/mcroberts-scholars/scholarship-harvester/internal/logger"

// Logger is the structured logger senders report deliveries to.
type Logger = logger.Logger

func ensureLogger(log Logger) Logger { return logger.Ensure(log) }

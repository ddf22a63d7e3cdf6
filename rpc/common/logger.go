package common

import (
	"github.com/sinkdb/core/corelog"
)

// InitLoggers sets the global corelog level from config, the one place the
// RPC server's logging configuration is applied. There is no per-subsystem
// logger registry to walk here: corelog.Get creates named loggers lazily
// and SetGlobalLevel reaches every one already handed out.
func InitLoggers(config ServerConfig) {
	level, err := corelog.ParseLevel(config.LogLevel)
	if err != nil {
		level = corelog.Info
	}
	corelog.SetGlobalLevel(level)
}

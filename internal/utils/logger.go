// Package utils contains general helpers shared by the dirindex application.
package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewApplicationLogger constructs a zap logger configured for human-readable
// console output on stderr, leaving stdout free for command results.
func NewApplicationLogger() (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Encoding = "console"
	loggerConfig.OutputPaths = []string{"stderr"}
	loggerConfig.DisableCaller = true
	loggerConfig.DisableStacktrace = true
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	loggerConfig.EncoderConfig.TimeKey = ""
	loggerConfig.EncoderConfig.LevelKey = ""
	loggerConfig.EncoderConfig.NameKey = ""
	loggerConfig.EncoderConfig.CallerKey = ""
	loggerConfig.EncoderConfig.MessageKey = "message"
	loggerConfig.EncoderConfig.StacktraceKey = ""
	return loggerConfig.Build()
}

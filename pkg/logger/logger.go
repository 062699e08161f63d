package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ProductionMode  = "production"
	DevelopmentMode = "development"
)

// New builds a zap logger for the given mode. Production gets JSON with
// ISO8601 timestamps; anything else gets the colored console encoder.
func New(mode string) *zap.Logger {
	var config zap.Config
	if mode == ProductionMode {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapLogger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return zapLogger
}

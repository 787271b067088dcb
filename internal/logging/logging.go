package logging

import (
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fitkeep/fitdb/internal/config"
)

// New builds a logger writing to stderr and, when cfg.File is set, to a
// rotated JSON log file. The returned close function flushes the logger and
// closes the file.
func New(cfg config.LogConfig) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	var encCfg zapcore.EncoderConfig
	var console zapcore.Encoder
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		console = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		console = zapcore.NewConsoleEncoder(encCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(console, zapcore.Lock(os.Stderr), level),
	}

	var r *rotator.Rotator
	if cfg.File != "" {
		r, err = newRotator(cfg.File, cfg.MaxSizeKB, cfg.MaxRolls)
		if err != nil {
			return nil, nil, err
		}
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(r), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	closer := func() error {
		_ = logger.Sync()
		if r != nil {
			return r.Close()
		}
		return nil
	}
	return logger, closer, nil
}

func newRotator(logFile string, thresholdKB int64, maxRolls int) (*rotator.Rotator, error) {
	logDir, _ := filepath.Split(logFile)
	// if the logDir is empty then `logFile` is in the cwd and there's no need to create any directory.
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return nil, errors.Errorf("failed to create log directory: %+v", err)
		}
	}
	r, err := rotator.New(logFile, thresholdKB, false, maxRolls)
	if err != nil {
		return nil, errors.Errorf("failed to create file rotator: %s", err)
	}
	return r, nil
}

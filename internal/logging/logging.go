package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	gormlogger "gorm.io/gorm/logger"
)

// New returns a logger at the given level. When file is set, output goes to a rotating log file
// instead of stderr.
func New(level, file string) (*logrus.Logger, error) {
	parsedLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %#v: %w", level, err)
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		}
	}

	logFormatter := new(logrus.TextFormatter)
	logFormatter.TimestampFormat = time.RFC3339
	logFormatter.FullTimestamp = true

	logger := logrus.New()
	logger.SetFormatter(logFormatter)
	logger.SetLevel(parsedLevel)
	logger.SetOutput(out)
	return logger, nil
}

// GormLogger routes gorm's SQL logging through logger, reporting slow queries as warnings.
func GormLogger(logger *logrus.Logger) gormlogger.Interface {
	return gormlogger.New(
		logger.WithField("fromSQL", true),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

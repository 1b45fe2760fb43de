package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logg *logrus.Logger

// GetLogger 取全局 logger
func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logg.SetLevel(logrus.InfoLevel)
	logg.SetOutput(os.Stdout)
}

// Setup 按配置切换输出格式与级别
func Setup(jsonFormat bool, level string) {
	if jsonFormat {
		logg.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logg.SetLevel(lvl)
	}
}

// WithRow 带表格行上下文的日志入口
func WithRow(sheet string, row int) *logrus.Entry {
	return logg.WithFields(logrus.Fields{
		"sheet": sheet,
		"row":   row,
	})
}

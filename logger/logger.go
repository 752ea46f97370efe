package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Log = logrus.New()

type LoggerConfig struct {
	LogLevel      string
	LogFile       string
	LogFileSize   int
	LogFileCount  int
	LogCompress   bool
	LogToFileOnly bool
	LogJSON       bool
}

// InitLogger configures the global logger. A LogFileSize of 0 disables the
// rotating log file.
func InitLogger(config LoggerConfig) {
	if config.LogJSON {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	Log.SetLevel(ParseLevel(config.LogLevel))

	if config.LogFileSize == 0 {
		Log.SetOutput(os.Stdout)
		return
	}
	if config.LogFile == "" {
		config.LogFile = "organizer.log"
	}
	rotate := &lumberjack.Logger{
		Filename:   config.LogFile,
		MaxSize:    config.LogFileSize, // megabytes
		MaxBackups: config.LogFileCount,
		MaxAge:     28, //days
		Compress:   config.LogCompress,
	}
	if config.LogToFileOnly {
		Log.SetOutput(rotate)
		return
	}
	Log.SetOutput(io.MultiWriter(os.Stdout, rotate))
}

func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warning", "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Silence discards all output. Used by tests and by --quiet.
func Silence() {
	Log.SetOutput(io.Discard)
}

package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/v2rayA/beego/v2/logs"
)

var (
	logger *logs.BeeLogger
	once   sync.Once
)

// ParseLevel converts the configured level name to a beego level.
func ParseLevel(level string) int {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return logs.LevelDebug
	case "info":
		return logs.LevelInformational
	case "warn", "warning":
		return logs.LevelWarning
	case "error":
		return logs.LevelError
	default:
		return logs.LevelInformational
	}
}

// InitLog sets up the global logger. logWay is "console" or "file".
func InitLog(logWay string, logFile string, logLevel string, logMaxDays int64, logDisableColor bool) {
	l := logs.NewLogger()
	l.EnableFuncCallDepth(true)
	// skip this wrapper
	l.SetLogFuncCallDepth(3)
	level := ParseLevel(logLevel)
	var err error
	switch logWay {
	case "file":
		err = l.SetLogger(logs.AdapterFile, fmt.Sprintf(`{"filename":%q,"level":%d,"maxdays":%d,"daily":true}`, logFile, level, logMaxDays))
	default:
		err = l.SetLogger(logs.AdapterConsole, fmt.Sprintf(`{"level":%d,"color":%v}`, level, !logDisableColor))
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "init log: %v\n", err)
	}
	logger = l
}

func getLogger() *logs.BeeLogger {
	once.Do(func() {
		if logger == nil {
			InitLog("console", "", "info", 0, false)
		}
	})
	return logger
}

func Trace(format string, v ...interface{}) {
	getLogger().Debug(format, v...)
}

func Debug(format string, v ...interface{}) {
	getLogger().Debug(format, v...)
}

func Info(format string, v ...interface{}) {
	getLogger().Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	getLogger().Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	getLogger().Error(format, v...)
}

func Fatal(format string, v ...interface{}) {
	getLogger().Critical(format, v...)
	getLogger().Flush()
	os.Exit(1)
}

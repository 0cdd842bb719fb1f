package core

import (
	"fmt"
	"path"
	"runtime"
	"strings"

	"github.com/jcelliott/lumber"
)

var log = lumber.NewConsoleLogger(lumber.DEBUG)

func init() {
	log.TimeFormat("2006-01-02 15:04:05.000")
	log.Prefix("VKBot")
}

func SetLogLevel(lvl int) {
	log.Level(lvl)
}

var levelNames = map[string]int{
	"trace": lumber.TRACE,
	"debug": lumber.DEBUG,
	"info":  lumber.INFO,
	"warn":  lumber.WARN,
	"error": lumber.ERROR,
	"fatal": lumber.FATAL,
}

// SetLogLevelName switches the level by name. Unknown names leave the level
// untouched and return false.
func SetLogLevelName(name string) bool {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return false
	}
	log.Level(lvl)
	return true
}

func IsLogInfo() bool {
	return log.IsInfo()
}
func IsLogDebug() bool {
	return log.IsDebug()
}

func LogDebugF(format string, v ...interface{}) {
	if log.IsDebug() {
		doLogF(log.Debug, format, v...)
	}
}

func LogInfoF(format string, v ...interface{}) {
	if log.IsInfo() {
		doLogF(log.Info, format, v...)
	}
}

func LogWarnF(format string, v ...interface{}) {
	if log.IsWarn() {
		doLogF(log.Warn, format, v...)
	}
}

func LogErrorF(format string, v ...interface{}) {
	if log.IsError() {
		doLogF(log.Error, format, v...)
	}
}

func LogDebug(v ...interface{}) {
	if log.IsDebug() {
		doLog(log.Debug, v...)
	}
}

func LogWarn(v ...interface{}) {
	if log.IsWarn() {
		doLog(log.Warn, v...)
	}
}

func LogError(v ...interface{}) {
	if log.IsError() {
		doLog(log.Error, v...)
	}
}

func doLogF(logger func(format string, v ...interface{}), format string, v ...interface{}) {
	_, fn, line, _ := runtime.Caller(2)
	logger("%s:%d | %s", path.Base(fn), line, fmt.Sprintf(format, v...))
}

func doLog(logger func(format string, v ...interface{}), v ...interface{}) {
	_, fn, line, _ := runtime.Caller(2)
	logger("%s:%d | %s", path.Base(fn), line, fmt.Sprint(v...))
}

package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultLogLevel = logrus.InfoLevel

var levelMap = map[string]logrus.Level{
	"trace":   logrus.TraceLevel,
	"debug":   logrus.DebugLevel,
	"info":    logrus.InfoLevel,
	"warning": logrus.WarnLevel,
	"error":   logrus.ErrorLevel,
	"fatal":   logrus.FatalLevel,
	"panic":   logrus.PanicLevel,
}

// LogLevelConfig is a comma separated list of name=level pairs, where name is a
// logger subsystem, e.g. "Dispatch=debug,Lifecycle=trace". A bare level with
// no name sets the default for all subsystems, e.g. "debug,Dispatch=trace".
type LogLevelConfig string

// LogRegistry tracks the loggers created for each subsystem and the log level
// each subsystem is configured to run at.
type LogRegistry struct {
	loggerBySubsystem map[string]*logrus.Logger
	levelBySubsystem  map[string]logrus.Level
	defaultLevel      logrus.Level
	loggersMu         sync.Mutex
}

// ListLogLevels returns a comma separated string listing valid log levels.
func ListLogLevels() string {
	str := ""
	for k := range levelMap {
		if str != "" {
			str += ", "
		}
		str += fmt.Sprintf("%q", k)
	}
	return str
}

func NewLogRegistry(config LogLevelConfig) (*LogRegistry, error) {
	r := &LogRegistry{
		loggerBySubsystem: make(map[string]*logrus.Logger),
		levelBySubsystem:  make(map[string]logrus.Level),
		defaultLevel:      defaultLogLevel,
		loggersMu:         sync.Mutex{},
	}
	if config != "" {
		pairs := strings.Split(string(config), ",")
		for _, pair := range pairs {
			parts := strings.Split(pair, "=")
			switch len(parts) {
			case 1:
				level, ok := levelMap[parts[0]]
				if !ok {
					return nil, fmt.Errorf("invalid default log level: %q", parts[0])
				}
				r.defaultLevel = level
			case 2:
				level, ok := levelMap[parts[1]]
				if !ok {
					return nil, fmt.Errorf("invalid log level for %q: %v", parts[0], parts[1])
				}
				r.levelBySubsystem[parts[0]] = level
			default:
				return nil, fmt.Errorf("invalid log level entry %q: expected name=level", pair)
			}
		}
	}
	return r, nil
}

// GetLogLevel returns the configured log level for the specified subsystem.
func (r *LogRegistry) GetLogLevel(subsystem string) logrus.Level {
	r.loggersMu.Lock()
	defer r.loggersMu.Unlock()
	level, ok := r.levelBySubsystem[subsystem]
	if !ok {
		return r.defaultLevel
	}
	return level
}

// RegisterLogger registers a logger with the registry.
// Only used for bookkeeping right now; the idea is that we will be able to change the
// log level of registered loggers at runtime in the future.
func (r *LogRegistry) RegisterLogger(subsystem string, logger *logrus.Logger) {
	r.loggersMu.Lock()
	defer r.loggersMu.Unlock()
	r.loggerBySubsystem[subsystem] = logger
}

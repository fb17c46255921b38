package log

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level is a logging level. Values mirror logrus levels so conversion is a cast.
type Level uint32

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

// AllLevels is the set of levels accepted by ParseLevel, in severity order.
var AllLevels = []Level{
	PanicLevel,
	FatalLevel,
	ErrorLevel,
	WarnLevel,
	InfoLevel,
	DebugLevel,
	TraceLevel,
}

// String implements fmt.Stringer.
func (level Level) String() string {
	return logrus.Level(level).String()
}

// ParseLevel parses a level from its string name.
func ParseLevel(str string) (Level, error) {
	for _, level := range AllLevels {
		if strings.EqualFold(level.String(), str) {
			return level, nil
		}
	}

	return InfoLevel, fmt.Errorf("invalid log level %q, supported levels: %s", str, LevelNames())
}

// LevelNames returns the comma-separated names of all supported levels.
func LevelNames() string {
	names := make([]string, len(AllLevels))
	for i, level := range AllLevels {
		names[i] = level.String()
	}

	return strings.Join(names, ", ")
}

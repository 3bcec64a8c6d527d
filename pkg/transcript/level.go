package transcript

import (
	"fmt"
	"strings"
)

// Level selects how much of an exchange is written. Each level includes
// everything the previous one writes.
type Level int32

const (
	// LevelNone disables logging; exchanges are forwarded untouched.
	LevelNone Level = iota
	// LevelBasic writes the request line and the status line.
	LevelBasic
	// LevelHeaders adds request and response headers.
	LevelHeaders
	// LevelBody adds request and response bodies.
	LevelBody
)

var levelNames = [...]string{"NONE", "BASIC", "HEADERS", "BODY"}

func (l Level) String() string {
	if l < LevelNone || l > LevelBody {
		return fmt.Sprintf("Level(%d)", int32(l))
	}
	return levelNames[l]
}

// ParseLevel parses a level name in any case.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Level(i), nil
		}
	}
	return LevelNone, fmt.Errorf("unknown level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	if l < LevelNone || l > LevelBody {
		return nil, fmt.Errorf("unknown level %d", int32(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

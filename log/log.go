// Package log provides logging-related configuration types and constants for
// the browser and driver logs that a WebDriver session can return.
package log

import (
	"fmt"
	"time"
)

// Type represents a component capable of logging.
type Type string

// The valid log types.
const (
	Server      Type = "server"
	Browser     Type = "browser"
	Client      Type = "client"
	Driver      Type = "driver"
	Performance Type = "performance"
)

// Level represents a logging level of different components in the browser,
// the driver, or any intermediary WebDriver servers.
type Level string

// The valid log levels.
const (
	Off     Level = "OFF"
	Severe  Level = "SEVERE"
	Warning Level = "WARNING"
	Info    Level = "INFO"
	Debug   Level = "DEBUG"
	All     Level = "ALL"
)

var levelRank = map[Level]int{
	All:     0,
	Debug:   1,
	Info:    2,
	Warning: 3,
	Severe:  4,
	Off:     5,
}

// AtLeast reports whether l is at least as severe as min. Unknown levels,
// which some drivers emit, rank with Info.
func (l Level) AtLeast(min Level) bool {
	rank := func(l Level) int {
		if r, ok := levelRank[l]; ok {
			return r
		}
		return levelRank[Info]
	}
	return rank(l) >= rank(min)
}

// CapabilitiesKey is the key for the logging preferences entry in the JSON
// structure representing WebDriver capabilities. Starting with Chrome 75 the
// key carries the "goog:" vendor prefix.
const CapabilitiesKey = "goog:loggingPrefs"

// Capabilities is the map to include in the WebDriver capabilities structure
// to configure logging.
type Capabilities map[Type]Level

// Message is a log message returned from the Log method.
type Message struct {
	Timestamp time.Time
	Level     Level
	Message   string
}

func (m Message) String() string {
	return fmt.Sprintf("%s [%s] %s", m.Timestamp.UTC().Format(time.RFC3339), m.Level, m.Message)
}

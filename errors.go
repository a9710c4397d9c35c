package webdriver

import (
	"errors"
	"fmt"
)

// Error contains information about a failure of a command. See the error
// table at https://www.w3.org/TR/webdriver/#errors.
type Error struct {
	// Err contains a general error string provided by the server, e.g.
	// "no such element".
	Err string `json:"error"`
	// Message is a detailed, human-readable message specific to the failure.
	Message string `json:"message"`
	// Stacktrace may contain the server-side stacktrace where the error
	// occurred.
	Stacktrace string `json:"stacktrace"`
	// HTTPCode is the HTTP status code returned by the server.
	HTTPCode int
	// LegacyCode is the "status" value of a JSON wire protocol reply. It is
	// zero for W3C replies.
	LegacyCode int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Err
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

// IsNoSuchElement reports whether err is a WebDriver "no such element" error.
func IsNoSuchElement(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Err == "no such element"
}

// Errors returned by servers speaking the JSON wire protocol, keyed by their
// numeric status.
var remoteErrors = map[int]string{
	6:  "invalid session id",
	7:  "no such element",
	8:  "no such frame",
	9:  "unknown command",
	10: "stale element reference",
	11: "element not visible",
	12: "invalid element state",
	13: "unknown error",
	15: "element is not selectable",
	17: "javascript error",
	19: "xpath lookup error",
	21: "timeout",
	23: "no such window",
	24: "invalid cookie domain",
	25: "unable to set cookie",
	26: "unexpected alert open",
	27: "no alert open",
	28: "script timeout",
	29: "invalid element coordinates",
	32: "invalid selector",
	33: "session not created",
}

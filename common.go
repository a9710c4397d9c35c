package webdriver

import (
	"fmt"

	"github.com/golang/glog"
)

var debugFlag = false

// SetDebug turns wire-level logging of every request and reply on or off.
func SetDebug(debug bool) {
	debugFlag = debug
}

func debugLog(format string, args ...interface{}) {
	if !debugFlag {
		return
	}
	glog.InfoDepth(1, fmt.Sprintf(format, args...))
}

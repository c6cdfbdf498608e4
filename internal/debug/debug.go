// Package debug provides env-gated diagnostic logging.
package debug

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	enabled     = os.Getenv("DEBUG") != "" && os.Getenv("DEBUG") != "0"
	verboseMode = false
	mu          sync.Mutex
)

// Enabled reports whether debug output is active (DEBUG=1 or --debug).
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables debug output from the --debug flag.
func SetVerbose(v bool) {
	verboseMode = v
}

// Logf writes timestamped diagnostics to stderr when debug is enabled.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(os.Stderr, "[%s] ", time.Now().Format("15:04:05.000"))
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
}

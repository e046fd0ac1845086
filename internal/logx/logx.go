/*
Package logx is a thin wrapper around the standard log package, grounded
on Backend.LogError(function, format, args...)'s convention (Peernet.go,
Network.go) and Config.go's InitLog, which redirects the default
logger's output to a configured file.
*/
package logx

import (
	"fmt"
	"log"
	"os"
)

// ToFile redirects subsequent log output to path, creating it if needed.
// The file is intentionally left open for the remainder of the process.
func ToFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("logx: opening %s: %w", path, err)
	}
	log.SetOutput(f)
	return nil
}

// Error logs a function-scoped error message, mirroring Backend.LogError.
func Error(function, format string, v ...interface{}) {
	log.Printf("[%s] "+format, append([]interface{}{function}, v...)...)
}

// Info logs a function-scoped informational message.
func Info(function, format string, v ...interface{}) {
	log.Printf("[%s] "+format, append([]interface{}{function}, v...)...)
}

// Fatal logs a function-scoped error and terminates the process, for
// startup failures where continuing would be meaningless (bad key store,
// unparsable config, unbindable socket).
func Fatal(function, format string, v ...interface{}) {
	log.Fatalf("[%s] "+format, append([]interface{}{function}, v...)...)
}

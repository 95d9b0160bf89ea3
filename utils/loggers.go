package utils

import (
	"log"
	"os"
)

var integrityLogger = log.New(os.Stderr, "[INTEGRITY] ", log.Ldate|log.Ltime)

// LogIntegrityWarning records a detected counter/record mismatch. These
// conditions are repaired by reconciliation and must never be hidden.
func LogIntegrityWarning(format string, args ...interface{}) {
	integrityLogger.Printf(format, args...)
}

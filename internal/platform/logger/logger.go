package logger

import (
	"log"
	"os"
)

// New returns a basic stdout logger; swap in structured logging when needed.
func New() *log.Logger {
	return log.New(os.Stdout, "", log.LstdFlags)
}

// Named returns a logger with a component prefix, e.g. "patch: ".
func Named(component string) *log.Logger {
	return log.New(os.Stdout, component+": ", log.LstdFlags)
}

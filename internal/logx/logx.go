// Package logx is a thin logging wrapper; can be replaced with a
// structured logger later without touching call sites.
package logx

import (
	"log"
	"time"
)

func Infof(format string, args ...any) {
	log.Printf("INFO  %s "+format, append([]any{time.Now().UTC().Format(time.RFC3339Nano)}, args...)...)
}

func Errorf(format string, args ...any) {
	log.Printf("ERROR %s "+format, append([]any{time.Now().UTC().Format(time.RFC3339Nano)}, args...)...)
}

func Warnf(format string, args ...any) {
	log.Printf("WARN  %s "+format, append([]any{time.Now().UTC().Format(time.RFC3339Nano)}, args...)...)
}

// Package logx emits one-line JSON log records over the standard logger.
// Both the HTTP process and the worker log through it so records from either
// side grep the same way.
package logx

import (
	"encoding/json"
	"log"
	"time"
)

func Structured(level string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	if _, ok := fields["time"]; !ok {
		fields["time"] = time.Now().UTC().Format(time.RFC3339)
	}
	if _, ok := fields["level"]; !ok {
		fields["level"] = level
	}
	b, err := json.Marshal(fields)
	if err != nil {
		log.Printf("{\"level\":\"%s\",\"message\":\"log marshal failed\"}", level)
		return
	}
	log.Println(string(b))
}

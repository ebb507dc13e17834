// Package job keeps asynchronous ingestion tasks that failed so they can be
// inspected and replayed.
package job

import (
	"encoding/json"
	"time"
)

type Job struct {
	ID          string          `json:"id"`
	IngestionID string          `json:"ingestion_id"`
	Stage       string          `json:"stage"`
	Payload     json.RawMessage `json:"payload"`
	Error       string          `json:"error"`
	Retries     int             `json:"retries"`
	CreatedAt   time.Time       `json:"created_at"`
}

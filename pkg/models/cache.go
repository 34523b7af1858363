package models

import (
	"net/http"
	"time"
)

// CacheEntry is a stored asset response keyed by its request URL.
type CacheEntry struct {
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`
}

// CacheStats reports cache contents and lookup counters.
type CacheStats struct {
	Versions []string `json:"versions"`
	Entries  int64    `json:"entries"`
	Hits     int64    `json:"hits"`
	Misses   int64    `json:"misses"`
}

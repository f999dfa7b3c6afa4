package api

import "time"

// envelope wraps every successful response.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Message string      `json:"message,omitempty"`
}

// IngestResponse is the payload for POST /api/data.
type IngestResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Alerts  interface{} `json:"alerts"`
}

// HealthResponse is the payload for GET /api/health.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Subscribers int       `json:"subscribers"`
	Clients     int       `json:"clients"`
}

// UnreadCount is the data of GET /api/alerts/count.
type UnreadCount struct {
	UnreadCount int `json:"unreadCount"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

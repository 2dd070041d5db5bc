package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	OnlineCount   int     `json:"online_count"`
}

// PresenceResponse is the payload for GET /api/v1/presence.
type PresenceResponse struct {
	OnlineCount     int            `json:"online_count"`
	ConnectionCount int            `json:"connection_count"`
	IdentifiedUsers int            `json:"identified_users"`
	Rooms           []RoomResponse `json:"rooms"`
	GeneratedAt     string         `json:"generated_at"` // RFC3339
}

// RoomResponse is one room entry within PresenceResponse.
type RoomResponse struct {
	Room    string `json:"room"`
	Members int    `json:"members"`
}

// UserPresenceResponse is the payload for GET /api/v1/presence/users/{id}.
type UserPresenceResponse struct {
	UserID   string `json:"user_id"`
	Online   bool   `json:"online"`
	Sessions int    `json:"sessions"`
}

// NotifyResponse is the payload for a successful POST /api/v1/notify.
type NotifyResponse struct {
	Accepted bool `json:"accepted"`
}

// errorResponse is the standard JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

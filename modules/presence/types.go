package presence

// ServicePresenceCount is the request-reply service answering presence queries.
const ServicePresenceCount = "presence-count"

// PresenceRequest asks for the presence of one room.
type PresenceRequest struct {
	Room string `json:"room"`
}

// Presence is the presence of one room.
type Presence struct {
	Room      string   `json:"room"`
	Count     int64    `json:"count"`
	Usernames []string `json:"usernames"`
}

package models

// UserView is everything one identity is allowed to see. It is computed on
// demand and never cached.
type UserView struct {
	User      User          `json:"user"`
	Groups    []Group       `json:"groups"`
	Schedules []Schedule    `json:"schedules"`
	Chats     []ChatMessage `json:"chats"`
}

// Snapshot is the full state handed to and loaded from a persistence sink.
type Snapshot struct {
	Identities []Identity    `json:"users"`
	Groups     []Group       `json:"groups"`
	Schedules  []Schedule    `json:"schedules"`
	Chats      []ChatMessage `json:"chats"`
}

// Counts summarizes a snapshot for logs and gauges.
func (s Snapshot) Counts() map[string]int {
	return map[string]int{
		"users":     len(s.Identities),
		"groups":    len(s.Groups),
		"schedules": len(s.Schedules),
		"chats":     len(s.Chats),
	}
}

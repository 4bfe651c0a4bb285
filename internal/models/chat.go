package models

// ChatMessage is one line of group chat.
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	Sender    string    `db:"sender" json:"sender"`
	GroupID   string    `db:"group_id" json:"groupId"`
	Message   string    `db:"message" json:"message"`
	Timestamp Timestamp `db:"created_at" json:"timestamp"`
}

package session

import "time"

type ConnInfo struct {
	ConnID      string
	Transport   string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

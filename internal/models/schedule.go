package models

// Schedule is an appointment. A group schedule is never private and its
// participants are the group's members at creation time; a personal schedule
// has exactly its creator as participant.
type Schedule struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	StartTime    Timestamp `db:"start_time" json:"startTime"`
	EndTime      Timestamp `db:"end_time" json:"endTime"`
	AllDay       bool      `db:"all_day" json:"allDay"`
	GroupID      string    `db:"group_id" json:"groupId,omitempty"`
	Participants []string  `db:"-" json:"participants"`
	CreatedBy    string    `db:"created_by" json:"createdBy"`
	IsPrivate    bool      `db:"is_private" json:"isPrivate"`
}

// IsGroupSchedule reports whether the schedule is owned by a group.
func (s Schedule) IsGroupSchedule() bool {
	return s.GroupID != ""
}

// HasParticipant reports whether username is listed as a participant.
func (s Schedule) HasParticipant(username string) bool {
	for _, p := range s.Participants {
		if p == username {
			return true
		}
	}
	return false
}

// ScheduleDraft carries the caller-supplied fields of a new schedule.
type ScheduleDraft struct {
	Title       string
	Description string
	StartTime   Timestamp
	EndTime     Timestamp
	AllDay      bool
	GroupID     string
	IsPrivate   bool
}

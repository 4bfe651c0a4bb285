package models

// Group is a named set of identities. Members always contain CreatedBy.
type Group struct {
	ID        string   `db:"id" json:"id"`
	Name      string   `db:"name" json:"name"`
	CreatedBy string   `db:"created_by" json:"createdBy"`
	Members   []string `db:"-" json:"members"`
}

// HasMember reports whether username (already case-folded) belongs to the group.
func (g Group) HasMember(username string) bool {
	for _, m := range g.Members {
		if m == username {
			return true
		}
	}
	return false
}

package models

// Identity is a registered account. Username is stored case-folded.
type Identity struct {
	Username string `db:"username" json:"username"`
	Secret   string `db:"secret" json:"password"`
}

// User is the public face of an Identity; the secret never leaves the store.
type User struct {
	Username string `json:"username"`
}

// Public strips the credential.
func (i Identity) Public() User {
	return User{Username: i.Username}
}

package repositories

import "errors"

var (
	ErrAlreadyExists      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("username must not be empty")
	ErrNoValidMembers     = errors.New("group has no valid members")
	ErrUnknownGroup       = errors.New("group not found")
	ErrNotAMember         = errors.New("not a member of this group")
	ErrUnknownIdentity    = errors.New("unknown user")
)

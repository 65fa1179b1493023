// Package models defines server-side data models persisted in the database.
package models

// User is a person who can sign in. PasswordHash is empty for accounts
// created through an identity provider; such users cannot log in locally.
type User struct {
	Username     string
	PasswordHash string
	Email        string
	IsLocal      bool
	IsAdmin      bool
}

// CanLogInLocally reports whether the account has a password to check.
func (u *User) CanLogInLocally() bool {
	return u.IsLocal && u.PasswordHash != ""
}

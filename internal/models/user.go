package models

// User is the identity resolved from a request's session cookie.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

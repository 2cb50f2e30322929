package models

// Principal is the caller as resolved by the external user directory.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"` // role in the external directory, e.g. "admin" | "user"
}

package models

// Borrower is the read-only view of a client record needed for notifications.
type Borrower struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

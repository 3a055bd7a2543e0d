package models

// User represents a patient account in the system.
type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Account      string `json:"account"`
	PasswordHash string `json:"-"` // Never expose this to the client
	Age          int    `json:"age"`
	Sex          string `json:"sex"`
}

// Profile is the subset of a user that goes into a diagnostic prompt,
// stamped with the server-side visit date.
type Profile struct {
	UserID    int64  `json:"userId"`
	Name      string `json:"name"`
	Sex       string `json:"sex"`
	Age       int    `json:"age"`
	VisitDate string `json:"visit_date"`
}

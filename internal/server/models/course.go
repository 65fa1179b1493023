package models

// Course is a course whose students have log files on the server.
type Course struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

package models

// Profile is a named source/destination pair with a filter.
// Profiles are stored by the configuration layer; the planner only consumes them.
type Profile struct {
	Name        string     `json:"name"`
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
	Filter      FilterSpec `json:"filter"`
}

package model

// UserProfile is the platform-side identity of the logged-in user.
// IDNumber is the stable id every chat and notification record is keyed
// by; GoogleID only matters during identity resolution.
type UserProfile struct {
	IDNumber  string `json:"id_number"`
	GoogleID  string `json:"google_id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

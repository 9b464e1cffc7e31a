package domain

import "time"

// ApplicationType distinguishes browser clients from installed native clients.
type ApplicationType string

const (
	ApplicationTypeWebBrowser ApplicationType = "web-browser"
	ApplicationTypeNativeApp  ApplicationType = "native-app"
)

// RegisteredApplication is a named client instance owned by an account.
// (user_id, name) is unique; a native login with a known descriptor reuses
// the existing record and refreshes its last seen location.
type RegisteredApplication struct {
	ID           string
	UserID       string
	Name         string
	Type         ApplicationType
	LastLocation string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

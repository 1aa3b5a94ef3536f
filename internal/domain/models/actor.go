// internal/domain/models/actor.go
package models

// Actor is the authenticated caller as supplied by the identity provider.
type Actor struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// Name returns the display name snapshot written into history entries.
func (a Actor) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.IsAnonymous {
		return "Anonymous"
	}
	return "Unknown"
}

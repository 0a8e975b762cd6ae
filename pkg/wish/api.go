package wish

import "slices"

// Themes are the board themes a relay accepts.
var Themes = []string{"default", "night", "winter", "spring"}

func ValidTheme(name string) bool {
	return slices.Contains(Themes, name)
}

// UploadResponse is the body of every /api/upload reply.
type UploadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Wish    *Wish  `json:"wish,omitempty"`
}

// ErrorResponse is returned by the admin endpoints on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

type Cleared struct {
	Cleared int `json:"cleared"`
}

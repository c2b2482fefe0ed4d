package model

import "time"

// Credential is one API credential for an analysis provider. Credentials are
// deactivated, never deleted, when the gateway sees an authorization failure.
type Credential struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Secret    string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Redacted returns the secret truncated for logging.
func (c Credential) Redacted() string {
	if len(c.Secret) <= 8 {
		return "********"
	}
	return c.Secret[:8] + "..."
}

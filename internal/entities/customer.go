package entities

import "time"

// Customer is a principal of the identity store
type Customer struct {
	ID               int64
	Login            string
	PasswordHash     string
	Enabled          bool
	FailedLoginCount int
	LastLoginTime    *time.Time
	Authenticated    bool // Set by a successful login only
}

// Locked reports whether the customer exceeded the allowed failed logins
func (c *Customer) Locked(maxFailed int) bool {
	return maxFailed > 0 && c.FailedLoginCount >= maxFailed
}

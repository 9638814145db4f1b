package entities

// AuthFailureReason explains why a credential was not accepted
type AuthFailureReason int

const (
	// AuthFailureNone is set on successful authentication
	AuthFailureNone AuthFailureReason = iota
	// AuthFailureInvalidCredential means the identity store rejected the login
	AuthFailureInvalidCredential
	// AuthFailureMissing means the user name or password was absent
	AuthFailureMissing
	// AuthFailureMalformed means the header was absent or could not be processed
	AuthFailureMalformed
)

func (r AuthFailureReason) String() string {
	switch r {
	case AuthFailureNone:
		return "None"
	case AuthFailureInvalidCredential:
		return "InvalidCredential"
	case AuthFailureMissing:
		return "Missing"
	case AuthFailureMalformed:
		return "Malformed"
	default:
		return "Unknown"
	}
}

// AuthResult is the outcome of one credential check.
// Authenticated is true exactly when Reason is AuthFailureNone.
type AuthResult struct {
	Authenticated bool
	Reason        AuthFailureReason
}

// AuthSucceeded returns a successful result
func AuthSucceeded() AuthResult {
	return AuthResult{Authenticated: true, Reason: AuthFailureNone}
}

// AuthFailed returns a failed result with the given reason
func AuthFailed(reason AuthFailureReason) AuthResult {
	return AuthResult{Authenticated: false, Reason: reason}
}

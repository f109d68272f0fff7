package actor

import "context"

// Credentials are the current login pair for a target site account.
type Credentials struct {
	Username string
	Password string
}

// Actor drives one password change against a target site. A single Actor
// instance serves exactly one attempt: Open, Authenticate, ChangePassword,
// then Close. Close must be called on every exit path regardless of which
// step failed; implementations release the underlying session there.
type Actor interface {
	// Open navigates to the site and clears any bot-challenge gate.
	Open(ctx context.Context) error

	// Authenticate logs in with the given credentials. Error text from the
	// site is surfaced verbatim so callers can classify it.
	Authenticate(ctx context.Context, creds Credentials) error

	// ChangePassword submits a password change with a freshly generated
	// strong password and returns it on confirmed success.
	ChangePassword(ctx context.Context) (string, error)

	// Close releases the session. Safe to call more than once.
	Close() error
}

// Factory builds a fresh Actor for one reset attempt against a site.
// headless comes from the accounts config, so operators can flip a pass
// to a visible browser without restarting the daemon.
type Factory func(siteURL string, headless bool) (Actor, error)

package schedule

import "strings"

// Outcome of classifying a failed reset attempt.
const (
	FailureException = "exception"
	FailureRetryable = "retryable"
)

// Classifier decides whether a failed attempt's error text indicates a
// stale stored password (exception) or a transient problem worth retrying
// on the next pass.
type Classifier func(errText string) string

// DefaultClassifier matches the credential-rejection phrases the target
// sites are known to emit. Anything else (unreachable site, challenge
// never cleared, ambiguous confirmation) is treated as retryable.
func DefaultClassifier(errText string) string {
	text := strings.ToLower(errText)
	for _, phrase := range []string{
		"correct username and password",
		"invalid credentials",
		"login failed",
	} {
		if strings.Contains(text, phrase) {
			return FailureException
		}
	}
	return FailureRetryable
}

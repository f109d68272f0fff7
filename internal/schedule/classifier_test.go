package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name    string
		errText string
		want    string
	}{
		{"credential rejection", "login failed: Please enter a correct username and password", FailureException},
		{"invalid credentials", "Invalid Credentials supplied", FailureException},
		{"generic login failed", "LOGIN FAILED", FailureException},
		{"challenge timeout", "bot challenge did not clear within 1m30s", FailureRetryable},
		{"site unreachable", "open site: context deadline exceeded", FailureRetryable},
		{"ambiguous confirmation", "could not confirm password change", FailureRetryable},
		{"empty", "", FailureRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClassifier(tt.errText))
		})
	}
}

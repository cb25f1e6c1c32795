// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithSubject/SubjectFromContext for propagating auth info via context

package auth

import (
	"context"
)

// subjectKey is the key type for storing the authenticated subject in context.Context.
type subjectKey struct{}

// WithSubject returns a new context with the authenticated subject attached.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext retrieves the authenticated subject from the context.
// Returns an empty string if no subject is present.
func SubjectFromContext(ctx context.Context) string {
	val := ctx.Value(subjectKey{})
	if val == nil {
		return ""
	}
	subject, ok := val.(string)
	if !ok {
		return ""
	}
	return subject
}

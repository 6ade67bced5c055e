package delegation

import "context"

type contextKey string

// credentialKey is the context key for the per-request delegated credential.
const credentialKey contextKey = "delegated_credential"

// NewContext returns a copy of ctx carrying the delegated credential.
// The session middleware calls this once per request; everything below
// it reads the credential from the context rather than from the store.
func NewContext(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, credentialKey, cred)
}

// FromContext extracts the delegated credential from the context.
// Returns false if the request carries none.
func FromContext(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(credentialKey).(Credential)
	return cred, ok
}

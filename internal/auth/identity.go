package auth

// Identity is a normalized external identity returned by a sign-in
// provider. It carries facts only; mapping it onto a participant is the
// elsewhere resolver's job.
type Identity struct {
	Provider       string // registry name, e.g. "google"
	ProviderUserID string // provider-scoped subject
	Email          string
	EmailVerified  bool
}

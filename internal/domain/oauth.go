package domain

// OAuthProvider names an external identity provider.
type OAuthProvider string

const (
	OAuthProviderGoogle OAuthProvider = "google"
	OAuthProviderGitHub OAuthProvider = "github"
)

func IsValidProvider(p string) bool {
	switch OAuthProvider(p) {
	case OAuthProviderGoogle, OAuthProviderGitHub:
		return true
	default:
		return false
	}
}

// OAuthProfile is what the service needs from a provider after the code
// exchange.
type OAuthProfile struct {
	Provider      OAuthProvider
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

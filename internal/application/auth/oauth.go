package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"

	"github.com/baechuer/storefront-auth/internal/domain"
)

// OAuthStartResult contains the authorization URL to redirect to.
type OAuthStartResult struct {
	AuthURL string
}

// OAuthCallbackResult contains the login result after a successful OAuth
// round trip.
type OAuthCallbackResult struct {
	SessionResult
	RedirectTo string
	IsNewUser  bool
}

// generatePKCE returns an S256 code verifier / challenge pair.
func generatePKCE() (verifier, challenge string, err error) {
	verifier, err = RandomToken()
	if err != nil {
		return "", "", err
	}
	h := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(h[:]), nil
}

func (s *Service) provider(name domain.OAuthProvider) (OAuthProvider, error) {
	if !domain.IsValidProvider(string(name)) {
		return nil, domain.ErrUnsupportedProvider(string(name))
	}
	p, ok := s.providers[name]
	if !ok || !p.IsConfigured() || s.states == nil {
		return nil, domain.ErrOAuthNotConfigured(string(name))
	}
	return p, nil
}

// OAuthStart generates state and PKCE values and returns where to send the
// browser.
func (s *Service) OAuthStart(ctx context.Context, name domain.OAuthProvider, redirectTo string) (OAuthStartResult, error) {
	p, err := s.provider(name)
	if err != nil {
		return OAuthStartResult{}, err
	}

	verifier, challenge, err := generatePKCE()
	if err != nil {
		return OAuthStartResult{}, err
	}

	state, err := s.states.Create(ctx, OAuthStateData{
		CodeVerifier: verifier,
		RedirectTo:   redirectTo,
		Provider:     string(name),
	})
	if err != nil {
		return OAuthStartResult{}, err
	}

	return OAuthStartResult{AuthURL: p.AuthURL(state, challenge)}, nil
}

// OAuthCallback consumes the state, exchanges the code and signs the user in,
// creating or linking the account when needed.
func (s *Service) OAuthCallback(ctx context.Context, name domain.OAuthProvider, stateToken, code string) (OAuthCallbackResult, error) {
	p, err := s.provider(name)
	if err != nil {
		return OAuthCallbackResult{}, err
	}
	if strings.TrimSpace(code) == "" {
		return OAuthCallbackResult{}, domain.ErrMissingField("code")
	}

	// one-time use, prevents replay
	state, err := s.states.Consume(ctx, stateToken)
	if err != nil {
		return OAuthCallbackResult{}, domain.ErrInvalidOAuthState()
	}
	if state.Provider != string(name) {
		return OAuthCallbackResult{}, domain.ErrInvalidOAuthState()
	}

	profile, err := p.FetchProfile(ctx, code, state.CodeVerifier)
	if err != nil {
		return OAuthCallbackResult{}, domain.ErrOAuthProviderFailed(err)
	}
	profile.Provider = name
	profile.Email = domain.NormalizeEmail(profile.Email)
	if profile.Subject == "" || profile.Email == "" {
		return OAuthCallbackResult{}, domain.ErrOAuthProviderFailed(nil)
	}

	user, isNew, err := s.resolveOAuthUser(ctx, profile)
	if err != nil {
		return OAuthCallbackResult{}, err
	}

	toks, err := s.issueTokens(ctx, user)
	if err != nil {
		return OAuthCallbackResult{}, err
	}
	s.markPresence(ctx, user.ID, true)

	action := "oauth.login"
	if isNew {
		action = "oauth.register"
	}
	s.audit(action, map[string]string{
		"user_id":  user.ID,
		"provider": string(name),
	})

	return OAuthCallbackResult{
		SessionResult: SessionResult{User: user, Tokens: toks},
		RedirectTo:    state.RedirectTo,
		IsNewUser:     isNew,
	}, nil
}

func (s *Service) resolveOAuthUser(ctx context.Context, profile domain.OAuthProfile) (domain.User, bool, error) {
	u, err := s.users.GetByOAuthSubject(ctx, profile.Provider, profile.Subject)
	if err == nil {
		return u, false, nil
	}
	if !domain.Is(err, "user_not_found") {
		return domain.User{}, false, err
	}

	if !profile.EmailVerified {
		return domain.User{}, false, domain.ErrEmailNotVerified()
	}

	existing, err := s.users.GetByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		// Auto-linking onto an unverified local account would let whoever
		// controls the provider identity take it over.
		if !existing.EmailVerified {
			return domain.User{}, false, domain.ErrEmailNotVerified()
		}
		if err := s.users.LinkOAuth(ctx, existing.ID, profile.Provider, profile.Subject); err != nil {
			return domain.User{}, false, err
		}
		s.audit("oauth.linked", map[string]string{
			"user_id":  existing.ID,
			"provider": string(profile.Provider),
		})
		return existing, false, nil
	case !domain.Is(err, "user_not_found"):
		return domain.User{}, false, err
	}

	now := s.now()
	nu := domain.User{
		ID:            uuid.NewString(),
		Email:         profile.Email,
		Name:          strings.TrimSpace(profile.Name),
		Role:          domain.RoleCustomer,
		Active:        true,
		EmailVerified: true,
		TokenVersion:  domain.InitialTokenVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	switch profile.Provider {
	case domain.OAuthProviderGoogle:
		nu.GoogleID = profile.Subject
	case domain.OAuthProviderGitHub:
		nu.GitHubID = profile.Subject
	}
	nu.Name = clipName(nu.Name)
	if err := nu.Validate(); err != nil {
		return domain.User{}, false, err
	}

	created, err := s.users.Create(ctx, nu)
	if err != nil {
		return domain.User{}, false, err
	}
	return created, true, nil
}

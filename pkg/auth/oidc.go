package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// OIDCAuthenticator holds the OAuth2 configuration for hospital
// identity providers that federate into the platform. Provider-side
// clients exchange their IdP code for a session here, then carry the
// resulting JWT on every call.
type OIDCAuthenticator struct {
	config *oauth2.Config
	issuer string
}

func NewOIDCAuthenticator(issuer, clientID, clientSecret, redirectURL string) (*OIDCAuthenticator, error) {
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC configuration incomplete")
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("%s/authorize", issuer),
			TokenURL: fmt.Sprintf("%s/token", issuer),
		},
		Scopes: []string{"openid", "profile", "email"},
	}

	return &OIDCAuthenticator{
		config: config,
		issuer: issuer,
	}, nil
}

// AuthCodeURL returns the IdP login URL for the given state.
func (a *OIDCAuthenticator) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for the IdP's token set.
func (a *OIDCAuthenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return a.config.Exchange(ctx, code)
}

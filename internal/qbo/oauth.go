package qbo

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

const (
	AuthURL         = "https://appcenter.intuit.com/connect/oauth2"
	TokenURL        = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	AccountingScope = "com.intuit.quickbooks.accounting"
)

// OAuthConfig holds the app credentials registered with Intuit.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string // defaults to AuthURL
	TokenURL     string // defaults to TokenURL
}

// TokenClient performs the authorization-code and refresh-token grants.
type TokenClient struct {
	cfg  *oauth2.Config
	http *http.Client
}

// NewTokenClient builds a TokenClient. hc may be nil.
func NewTokenClient(c OAuthConfig, hc *http.Client) *TokenClient {
	if c.AuthURL == "" {
		c.AuthURL = AuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = TokenURL
	}
	return &TokenClient{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Scopes:       []string{AccountingScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.AuthURL,
				TokenURL:  c.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		http: hc,
	}
}

// AuthCodeURL is where an admin is sent to grant access.
func (t *TokenClient) AuthCodeURL(state string) string {
	return t.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens.
func (t *TokenClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return t.cfg.Exchange(t.ctx(ctx), code)
}

// Refresh posts grant_type=refresh_token with HTTP Basic client credentials.
// When the server omits refresh_token the old one is carried over.
func (t *TokenClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := t.cfg.TokenSource(t.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

func (t *TokenClient) ctx(ctx context.Context) context.Context {
	if t.http == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, t.http)
}

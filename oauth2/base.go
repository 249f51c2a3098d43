package oauth2

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds each upstream provider call
const DefaultTimeout = 10 * time.Second

// BaseOAuth2 holds the client registration shared by providers
type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// Optional client used for token and profile requests
	HTTPClient *http.Client
	Timeout    time.Duration

	oauthConfig oauth2.Config
}

func NewBaseOAuth2(clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes []string) *BaseOAuth2 {
	return &BaseOAuth2{
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		Timeout:      DefaultTimeout,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
}

// SetEndpoint points the client at a different authorization server
func (b *BaseOAuth2) SetEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// AuthCodeURL builds the consent URL, asking for offline access
func (b *BaseOAuth2) AuthCodeURL(state string) string {
	return b.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// clientContext carries HTTPClient into x/oauth2 and applies the timeout
func (b *BaseOAuth2) clientContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (b *BaseOAuth2) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return b.oauthConfig.Exchange(ctx, code)
}

// client returns an HTTP client that sends the access token as a bearer header
func (b *BaseOAuth2) client(ctx context.Context, token *oauth2.Token) *http.Client {
	return b.oauthConfig.Client(ctx, token)
}

package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/panyam/passgate/internal/logging"
)

const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	ProviderGoogle    = "google"
)

// GoogleEndpoint is the v2 consent page with Google's token endpoint.
// Client credentials are posted in the form body.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:   GoogleAuthURL,
	TokenURL:  google.Endpoint.TokenURL,
	AuthStyle: oauth2.AuthStyleInParams,
}

// GoogleConfig carries the registration and redirect targets
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Where the browser lands after the callback
	SuccessURL string
	ErrorURL   string

	// When set, the callback's state must match the one stored by HandleAuthorize
	VerifyState bool
	States      StateStore
}

type GoogleOAuth2 struct {
	*BaseOAuth2

	HandleUser  HandleUserFunc
	UserInfoURL string
	SuccessURL  string
	ErrorURL    string
	VerifyState bool
	States      StateStore
}

func NewGoogleOAuth2(cfg GoogleConfig, handleUser HandleUserFunc) *GoogleOAuth2 {
	out := &GoogleOAuth2{
		BaseOAuth2:  NewBaseOAuth2(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL, GoogleEndpoint, []string{"email", "profile"}),
		HandleUser:  handleUser,
		UserInfoURL: GoogleUserInfoURL,
		SuccessURL:  cfg.SuccessURL,
		ErrorURL:    cfg.ErrorURL,
		VerifyState: cfg.VerifyState,
		States:      cfg.States,
	}
	if out.SuccessURL == "" {
		out.SuccessURL = "/dashboard"
	}
	if out.ErrorURL == "" {
		out.ErrorURL = "/login"
	}
	return out
}

// HandleAuthorize redirects the browser to Google's consent page
func (g *GoogleOAuth2) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	state, err := generateState()
	if err != nil {
		logger.Error("error generating oauth state", "err", err)
		g.redirectFailure(w, r, TagOAuthError)
		return
	}
	if g.VerifyState && g.States != nil {
		g.States.Put(r.Context(), stateSessionKey, state)
	}
	http.Redirect(w, r, g.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback runs the exchange and redirects to SuccessURL or ErrorURL
func (g *GoogleOAuth2) HandleCallback(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	query := r.URL.Query()

	expectedState := ""
	if g.VerifyState && g.States != nil {
		expectedState = g.States.PopString(r.Context(), stateSessionKey)
	}

	flow := g.Run(r.Context(), query.Get("code"), query.Get("state"), expectedState)
	if flow.State() != StateDone {
		logger.Warn("oauth callback failed", "provider", ProviderGoogle, "tag", flow.Err.Tag, "err", flow.Err.Err, "states", flow.History())
		g.redirectFailure(w, r, flow.Err.Tag)
		return
	}

	logger.Info("oauth login succeeded", "provider", ProviderGoogle, "email", flow.UserInfo.Email)
	target := withQuery(g.SuccessURL, url.Values{
		"msg":   {"login-success"},
		"token": {flow.SessionToken},
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// Run drives one callback from StateRedirected to StateDone or StateFailed.
// expectedState is only checked when VerifyState is set.
func (g *GoogleOAuth2) Run(ctx context.Context, code, state, expectedState string) *Flow {
	flow := NewFlow(ProviderGoogle)
	if code == "" {
		return flow.fail(TagNoCode, ErrNoCode)
	}
	if g.VerifyState && (expectedState == "" || state != expectedState) {
		return flow.fail(TagOAuthError, ErrStateMismatch)
	}

	if err := flow.transition(StateExchanging); err != nil {
		return flow.fail(TagOAuthError, err)
	}
	ctx, cancel := g.clientContext(ctx)
	defer cancel()

	token, err := g.exchange(ctx, code)
	if err != nil {
		return flow.fail(TagOAuthError, fmt.Errorf("code exchange failed: %w", err))
	}
	flow.Token = token

	if err := flow.transition(StateReconciling); err != nil {
		return flow.fail(TagOAuthError, err)
	}
	info, err := g.fetchUserInfo(ctx, token)
	if err != nil {
		return flow.fail(TagOAuthError, err)
	}
	flow.UserInfo = info
	if info.Email == "" {
		return flow.fail(TagNoEmail, ErrNoEmail)
	}
	if info.ID == "" {
		return flow.fail(TagOAuthError, ErrNoProviderID)
	}

	if g.HandleUser == nil {
		return flow.fail(TagOAuthError, fmt.Errorf("no user handler configured"))
	}
	sessionToken, err := g.HandleUser(ctx, ProviderGoogle, token, info)
	if err != nil {
		return flow.fail(TagOAuthError, err)
	}
	return flow.complete(sessionToken)
}

func (g *GoogleOAuth2) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	defer resp.Body.Close()

	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("user info request returned %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.Unmarshal(contents, &info); err != nil {
		return nil, fmt.Errorf("invalid user info: %w", err)
	}
	return &info, nil
}

func (g *GoogleOAuth2) redirectFailure(w http.ResponseWriter, r *http.Request, tag FailureTag) {
	http.Redirect(w, r, withQuery(g.ErrorURL, url.Values{"error": {string(tag)}}), http.StatusFound)
}

func withQuery(target string, values url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target + "?" + values.Encode()
	}
	q := u.Query()
	for k, vs := range values {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}

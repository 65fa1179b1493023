// Package oauth drives the OAuth2 authorization-code flow against external
// identity providers: building the authorize redirect, exchanging the code
// and reading the user's profile.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/server/config"
	"golang.org/x/oauth2"
)

// maxProfileBytes caps how much of a profile response is read.
const maxProfileBytes = 1 << 20

// Profile is the identity a provider vouched for.
type Profile struct {
	Username string
	Email    string
}

// Client talks to a single identity provider.
type Client struct {
	name          string
	oauth2Config  *oauth2.Config
	profileURL    string
	usernameField string
	emailField    string
	requireEmail  bool
	httpClient    *http.Client
}

// NewClient builds a Client from provider settings. A nil httpClient means
// http.DefaultClient.
func NewClient(p config.ProviderConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		name: p.Name,
		oauth2Config: &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   p.AuthURL,
				TokenURL:  p.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: p.RedirectURL,
			Scopes:      p.Scopes,
		},
		profileURL:    p.ProfileURL,
		usernameField: p.UsernameField,
		emailField:    p.EmailField,
		requireEmail:  p.RequireEmail,
		httpClient:    httpClient,
	}
}

// Name returns the provider name used in routes and state keys.
func (c *Client) Name() string {
	return c.name
}

// NewState returns a fresh CSRF state value with 256 bits of entropy.
func NewState() (string, error) {
	return common.MakeRandToken(common.StateBytes)
}

// AuthCodeURL returns the provider's authorize URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth2Config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token. It never
// retries: codes are single use. Failures are *common.ProviderError with
// the provider's HTTP status when one was received.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauth2Config.Exchange(ctx, code)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			status := rErr.Response.StatusCode
			if status < http.StatusBadRequest {
				status = http.StatusBadRequest
			}
			return nil, &common.ProviderError{Op: common.OpExchange, Status: status, Err: err}
		}
		if ctx.Err() != nil {
			return nil, &common.ProviderError{Op: common.OpExchange, Err: ctx.Err()}
		}
		// oauth2 reports a 200 without access_token as a plain error
		if strings.Contains(err.Error(), "missing access_token") {
			return nil, &common.ProviderError{Op: common.OpExchange, Status: http.StatusBadRequest, Err: err}
		}
		return nil, &common.ProviderError{Op: common.OpExchange, Err: err}
	}

	return token, nil
}

// FetchProfile reads the user's profile with the access token and maps
// the configured fields. A missing username (or email, when required)
// yields common.ErrProviderProfileIncomplete.
func (c *Client) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, &common.ProviderError{Op: common.OpProfile, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &common.ProviderError{Op: common.OpProfile, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		return nil, &common.ProviderError{
			Op:     common.OpProfile,
			Status: resp.StatusCode,
			Err:    errors.New("failed to fetch user information"),
		}
	}

	var data map[string]any
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, &common.ProviderError{Op: common.OpProfile, Err: fmt.Errorf("decode profile: %w", err)}
	}

	profile := &Profile{
		Username: getStringValue(data, c.usernameField),
		Email:    getStringValue(data, c.emailField),
	}

	if profile.Username == "" {
		return nil, fmt.Errorf("%w: missing %q", common.ErrProviderProfileIncomplete, c.usernameField)
	}
	if c.requireEmail && profile.Email == "" {
		return nil, fmt.Errorf("%w: missing %q", common.ErrProviderProfileIncomplete, c.emailField)
	}

	return profile, nil
}

// getStringValue returns data[key] as a string. Numbers are kept in their
// textual form since some providers encode student IDs as numbers.
func getStringValue(data map[string]any, key string) string {
	if key == "" {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// Profile is the normalised result of an OAuth exchange, independent of
// which provider produced it. ProviderUserID is the provider's own stable
// identifier for the account (GitHub's numeric ID, Google's subject).
type Profile struct {
	ProviderUserID string
	Name           string
	Email          string
	AvatarURL      string
}

// Provider is one external identity provider in the Authorization Code flow.
//
// The flow, for any provider:
//  1. Redirect the user to AuthURL (with a CSRF state we verify on return)
//  2. The provider calls back with a short-lived code
//  3. Exchange trades the code for an access token server-to-server and
//     fetches the user's profile with it
//
// The client secret and the access token never touch the browser.
type Provider interface {
	Name() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// --- GitHub ---

// GitHubProvider wraps golang.org/x/oauth2 for GitHub.
type GitHubProvider struct {
	config *oauth2.Config
}

// NewGitHubProvider creates a GitHubProvider. callbackURL must exactly match
// the "Authorization callback URL" registered on the GitHub OAuth app.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
	}
}

func (p *GitHubProvider) Name() string { return "github" }

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// githubUser is the slice of GitHub's /user response we care about.
// GitHub returns a much larger object — we only unmarshal what we need.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"` // empty if the user hides it
	AvatarURL string `json:"avatar_url"`
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	var gh githubUser
	if err := fetchProfile(ctx, p.config, code, "https://api.github.com/user", &gh); err != nil {
		return nil, fmt.Errorf("auth: github: %w", err)
	}
	if gh.ID == 0 {
		return nil, fmt.Errorf("auth: github returned an invalid user (id = 0)")
	}

	name := gh.Name
	if name == "" {
		name = gh.Login
	}
	return &Profile{
		ProviderUserID: strconv.FormatInt(gh.ID, 10),
		Name:           name,
		Email:          gh.Email,
		AvatarURL:      gh.AvatarURL,
	}, nil
}

// --- Google ---

// GoogleProvider wraps golang.org/x/oauth2 for Google Sign-In.
type GoogleProvider struct {
	config *oauth2.Config
}

func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	var gu googleUser
	if err := fetchProfile(ctx, p.config, code, "https://www.googleapis.com/oauth2/v2/userinfo", &gu); err != nil {
		return nil, fmt.Errorf("auth: google: %w", err)
	}
	if gu.ID == "" {
		return nil, fmt.Errorf("auth: google returned an invalid user (empty id)")
	}

	return &Profile{
		ProviderUserID: gu.ID,
		Name:           gu.Name,
		Email:          gu.Email,
		AvatarURL:      gu.Picture,
	}, nil
}

// fetchProfile performs the shared half of every provider's Exchange:
// trade the code for an access token, call the profile endpoint with it,
// and decode the JSON body into out.
func fetchProfile(ctx context.Context, cfg *oauth2.Config, code, profileURL string, out any) error {
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging OAuth code: %w", err)
	}

	// cfg.Client returns an *http.Client that adds the Bearer header itself.
	resp, err := cfg.Client(ctx, token).Get(profileURL)
	if err != nil {
		return fmt.Errorf("calling profile endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("profile endpoint returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding profile response: %w", err)
	}
	return nil
}

// Package auth provides Google OAuth2 authentication for mailtasks.
//
// It reads the credentials.json and token.json files used by the Python
// google-auth library, so existing tokens work without re-authentication.
// One token covers both Gmail and Google Tasks.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"
)

// DefaultScopes covers label edits, failure reports and the task list.
var DefaultScopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
	gmail.GmailLabelsScope,
	tasks.TasksScope,
}

// pythonToken represents the token.json format written by Python's google-auth library.
type pythonToken struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	Expiry       string   `json:"expiry"`
}

// TokenPath returns the token.json location next to credentialsPath.
func TokenPath(credentialsPath string) string {
	return filepath.Join(filepath.Dir(credentialsPath), "token.json")
}

// LoadGmailService returns an authenticated Gmail API service.
func LoadGmailService(ctx context.Context, credentialsPath string) (*gmail.Service, error) {
	client, err := NewHTTPClient(ctx, credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("get oauth client: %w", err)
	}
	return gmail.NewService(ctx, option.WithHTTPClient(client))
}

// LoadTasksService returns an authenticated Google Tasks API service.
func LoadTasksService(ctx context.Context, credentialsPath string) (*tasks.Service, error) {
	client, err := NewHTTPClient(ctx, credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("get oauth client: %w", err)
	}
	return tasks.NewService(ctx, option.WithHTTPClient(client))
}

// NewHTTPClient returns an authenticated HTTP client by loading the OAuth
// config from credentials.json and the token from token.json.
func NewHTTPClient(ctx context.Context, credentialsPath string) (*http.Client, error) {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}

	tokenPath := TokenPath(credentialsPath)
	token, err := loadPythonToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token from %s: %w", tokenPath, err)
	}

	ts := config.TokenSource(ctx, token)
	newToken, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if newToken.AccessToken != token.AccessToken {
		if saveErr := savePythonToken(tokenPath, newToken, config); saveErr != nil {
			slog.Warn("could not save refreshed token", "path", tokenPath, "error", saveErr)
		}
	}

	return oauth2.NewClient(ctx, ts), nil
}

// AuthCodeURL returns the consent URL for an offline token.
func AuthCodeURL(credentialsPath string) (string, error) {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return "", err
	}
	return config.AuthCodeURL("mailtasks", oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// ExchangeCode trades an authorization code for a token and writes it to
// token.json next to credentialsPath.
func ExchangeCode(ctx context.Context, credentialsPath, code string) error {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return err
	}
	token, err := config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := savePythonToken(TokenPath(credentialsPath), token, config); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func loadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials from %s: %w", credentialsPath, err)
	}

	config, err := google.ConfigFromJSON(data, DefaultScopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return config, nil
}

// loadPythonToken reads a token.json file in Python google-auth format
// and converts it to a Go oauth2.Token.
func loadPythonToken(tokenPath string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	return parsePythonToken(data)
}

func parsePythonToken(data []byte) (*oauth2.Token, error) {
	var pt pythonToken
	if err := json.Unmarshal(data, &pt); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	// Python writes ISO 8601 with microseconds.
	var expiry time.Time
	if pt.Expiry != "" {
		for _, layout := range []string{
			"2006-01-02T15:04:05.999999Z",
			"2006-01-02T15:04:05Z",
			time.RFC3339,
			time.RFC3339Nano,
		} {
			if t, err := time.Parse(layout, pt.Expiry); err == nil {
				expiry = t
				break
			}
		}
	}

	return &oauth2.Token{
		AccessToken:  pt.Token,
		RefreshToken: pt.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}, nil
}

func savePythonToken(tokenPath string, token *oauth2.Token, config *oauth2.Config) error {
	pt := pythonToken{
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     config.Endpoint.TokenURL,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       DefaultScopes,
		Expiry:       token.Expiry.UTC().Format("2006-01-02T15:04:05.999999Z"),
	}

	data, err := json.MarshalIndent(pt, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(tokenPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenPath, data, 0o600)
}

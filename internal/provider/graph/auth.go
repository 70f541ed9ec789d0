package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/pdf-mailer/internal/provider"
)

const graphScope = "https://graph.microsoft.com/.default"

// tokenURLFormat is the Entra ID v2 token endpoint for a tenant.
const tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// tokenSource acquires app-only access tokens with the OAuth2 client
// credentials grant. Tokens are not cached; every send asks for a new one.
type tokenSource struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
}

func newTokenSource(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenSource {
	return &tokenSource{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{graphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
	}
}

// Token requests a fresh access token. Rejections by the token endpoint
// wrap provider.ErrAuthentication.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	tok, err := s.cfg.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return "", fmt.Errorf("%w: token endpoint returned HTTP %d: %s",
				provider.ErrAuthentication, re.Response.StatusCode, tokenErrorDetail(re))
		}
		return "", fmt.Errorf("failed to acquire access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint returned no access token", provider.ErrAuthentication)
	}
	return tok.AccessToken, nil
}

func tokenErrorDetail(re *oauth2.RetrieveError) string {
	switch {
	case re.ErrorDescription != "":
		return re.ErrorCode + ": " + re.ErrorDescription
	case re.ErrorCode != "":
		return re.ErrorCode
	}
	return string(re.Body)
}

// ledger/identity/provider.go
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

const signInPath = "/v1/accounts:signInWithPassword"

// Provider signs principals in against the Identity Toolkit REST API.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewProvider(baseURL, apiKey string, httpClient *http.Client) *Provider {
	return &Provider{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn exchanges email and password for the subject id.
// Credential failures come back as AuthenticationError, transport failures as StoreError.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*models.Principal, error) {
	body, err := json.Marshal(signInRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sign-in request: %w", err)
	}

	endpoint := fmt.Sprintf("%s%s?key=%s", p.baseURL, signInPath, url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewStoreError("identity sign-in", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewStoreError("identity sign-in", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if jsonErr := json.Unmarshal(raw, &errResp); jsonErr != nil || errResp.Error.Message == "" {
			if resp.StatusCode >= http.StatusInternalServerError {
				return nil, apperrors.NewStoreError("identity sign-in", fmt.Errorf("status %d", resp.StatusCode))
			}
			return nil, apperrors.NewAuthenticationError("SIGN_IN_FAILED", "Sign-in failed")
		}
		code := ProviderCode(errResp.Error.Message)
		return nil, apperrors.NewAuthenticationError(code, Humanize(code))
	}

	var out signInResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode sign-in response: %w", err)
	}
	if out.LocalID == "" {
		return nil, apperrors.NewAuthenticationError("SIGN_IN_FAILED", "Sign-in failed")
	}
	if out.Email == "" {
		out.Email = email
	}
	return &models.Principal{SubjectID: out.LocalID, Email: out.Email}, nil
}

// ProviderCode strips the detail the provider appends to some codes,
// e.g. "TOO_MANY_ATTEMPTS_TRY_LATER : Access to this account..." becomes "TOO_MANY_ATTEMPTS_TRY_LATER".
func ProviderCode(message string) string {
	code, _, _ := strings.Cut(message, ":")
	return strings.TrimSpace(code)
}

// Humanize turns a provider error code into the message shown to users: INVALID_PASSWORD becomes "invalid password".
func Humanize(code string) string {
	if code == "" {
		return "Sign-in failed"
	}
	code = strings.TrimPrefix(strings.ToLower(code), "auth/")
	return strings.NewReplacer("_", " ", "-", " ").Replace(code)
}

// shared/service/ledgerclient.go
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Ftotnem/POINTS-LEDGER/shared/api"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

// LedgerClient is a client for the Ledger Service HTTP API.
// Redirects are not followed; a dashboard request answered with a redirect returns *api.RedirectError.
type LedgerClient struct {
	apiClient *api.Client
}

// NewLedgerClient creates a client for the ledger service at baseURL. httpClient may be nil.
func NewLedgerClient(baseURL string, httpClient *http.Client) *LedgerClient {
	if httpClient == nil {
		httpClient = api.NewDefaultHTTPClient()
	}
	return &LedgerClient{apiClient: api.NewClient(baseURL, api.NoRedirects(httpClient))}
}

// WithToken returns a client that acts as the session behind token.
func (c *LedgerClient) WithToken(token string) *LedgerClient {
	return &LedgerClient{apiClient: c.apiClient.WithBearerToken(token)}
}

// --- Request/Response DTOs for Ledger Service Communication ---
// These mirror the DTOs defined in ledger/api/handler.go.

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInResponse struct {
	Token     string `json:"token"`
	SubjectID string `json:"subjectId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Landing   string `json:"landing,omitempty"`
}

type RoleResponse struct {
	Role    string       `json:"role"`
	Landing string       `json:"landing,omitempty"`
	Team    *models.Team `json:"team,omitempty"`
}

type AdjustmentRequest struct {
	TransactionID string `json:"transactionId,omitempty"`
	TeamID        string `json:"teamId"`
	Delta         string `json:"delta"`
	Comment       string `json:"comment"`
}

type TransactionView struct {
	models.Transaction
	Kind string `json:"kind"`
}

type TeamDashboard struct {
	Team         *models.Team      `json:"team"`
	Transactions []TransactionView `json:"transactions"`
}

type AdminDashboard struct {
	Teams        []models.Team     `json:"teams"`
	Transactions []TransactionView `json:"transactions"`
}

type ReconcileDrift struct {
	TeamID       string `json:"teamId"`
	Name         string `json:"name"`
	Cached       int64  `json:"cached"`
	Computed     int64  `json:"computed"`
	Transactions int64  `json:"transactions"`
	Repaired     bool   `json:"repaired"`
}

type ReconcileReport struct {
	CheckedAt     time.Time        `json:"checkedAt"`
	Teams         int              `json:"teams"`
	Drifted       []ReconcileDrift `json:"drifted"`
	OrphanTeamIDs []string         `json:"orphanTeamIds,omitempty"`
}

// --- Client Methods for Ledger Service API Endpoints ---

// Leaderboard fetches the ranked teams. No session is needed.
func (c *LedgerClient) Leaderboard(ctx context.Context) ([]models.RankedTeam, error) {
	var resp struct {
		Teams []models.RankedTeam `json:"teams"`
	}
	if err := c.apiClient.Get(ctx, "/leaderboard", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	return resp.Teams, nil
}

// SignIn opens a session. Use WithToken with the returned token for authenticated calls.
func (c *LedgerClient) SignIn(ctx context.Context, email, password string) (*SignInResponse, error) {
	resp := &SignInResponse{}
	if err := c.apiClient.Post(ctx, "/auth/signin", SignInRequest{Email: email, Password: password}, resp); err != nil {
		return nil, fmt.Errorf("sign-in failed: %w", err)
	}
	return resp, nil
}

func (c *LedgerClient) SignOut(ctx context.Context) error {
	return c.apiClient.Post(ctx, "/auth/signout", nil, nil)
}

func (c *LedgerClient) Role(ctx context.Context) (*RoleResponse, error) {
	resp := &RoleResponse{}
	if err := c.apiClient.Get(ctx, "/session/role", resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *LedgerClient) TeamDashboard(ctx context.Context) (*TeamDashboard, error) {
	resp := &TeamDashboard{}
	if err := c.apiClient.Get(ctx, "/team/dashboard", resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *LedgerClient) AdminDashboard(ctx context.Context) (*AdminDashboard, error) {
	resp := &AdminDashboard{}
	if err := c.apiClient.Get(ctx, "/admin/dashboard", resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ApplyAdjustment moves teamID's points by delta with the given comment.
func (c *LedgerClient) ApplyAdjustment(ctx context.Context, teamID string, delta int64, comment string) (*TransactionView, error) {
	return c.ApplyAdjustmentWithID(ctx, "", teamID, delta, comment)
}

// ApplyAdjustmentWithID is ApplyAdjustment with a caller-chosen transaction id (a UUID),
// so a retried request cannot apply the adjustment twice.
func (c *LedgerClient) ApplyAdjustmentWithID(ctx context.Context, transactionID, teamID string, delta int64, comment string) (*TransactionView, error) {
	req := AdjustmentRequest{TransactionID: transactionID, TeamID: teamID, Delta: strconv.FormatInt(delta, 10), Comment: comment}
	resp := &TransactionView{}
	if err := c.apiClient.Post(ctx, "/admin/adjustments", req, resp); err != nil {
		return nil, fmt.Errorf("failed to apply adjustment to team %s: %w", teamID, err)
	}
	return resp, nil
}

func (c *LedgerClient) Team(ctx context.Context, teamID string) (*models.Team, error) {
	team := &models.Team{}
	if err := c.apiClient.Get(ctx, fmt.Sprintf("/teams/%s", url.PathEscape(teamID)), team); err != nil {
		return nil, fmt.Errorf("failed to get team %s: %w", teamID, err)
	}
	return team, nil
}

// Balance returns the team's current points. Returns an error wrapping api.ErrNotFound for unknown teams.
func (c *LedgerClient) Balance(ctx context.Context, teamID string) (int64, error) {
	var resp struct {
		Points int64 `json:"points"`
	}
	if err := c.apiClient.Get(ctx, fmt.Sprintf("/teams/%s/balance", url.PathEscape(teamID)), &resp); err != nil {
		return 0, fmt.Errorf("failed to get balance of team %s: %w", teamID, err)
	}
	return resp.Points, nil
}

// Transactions lists the newest transactions, of one team when teamID is set. limit <= 0 uses the server default.
func (c *LedgerClient) Transactions(ctx context.Context, teamID string, limit int) ([]TransactionView, error) {
	path := "/admin/transactions"
	if teamID != "" {
		path = fmt.Sprintf("/teams/%s/transactions", url.PathEscape(teamID))
	}
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp struct {
		Transactions []TransactionView `json:"transactions"`
	}
	if err := c.apiClient.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

func (c *LedgerClient) Reconcile(ctx context.Context, repair bool) (*ReconcileReport, error) {
	resp := &ReconcileReport{}
	body := struct {
		Repair bool `json:"repair"`
	}{Repair: repair}
	if err := c.apiClient.Post(ctx, "/admin/reconcile", body, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// IsRedirect reports whether err is a redirect and returns its target.
func IsRedirect(err error) (string, bool) {
	var redirect *api.RedirectError
	if errors.As(err, &redirect) {
		return redirect.Location, true
	}
	return "", false
}

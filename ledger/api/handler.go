// ledger/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/Ftotnem/POINTS-LEDGER/ledger/reconciler"
	"github.com/Ftotnem/POINTS-LEDGER/ledger/service"
	"github.com/Ftotnem/POINTS-LEDGER/shared/api"
	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
	"github.com/Ftotnem/POINTS-LEDGER/shared/registry"
)

// Reconciler runs an on-demand reconcile pass.
type Reconciler interface {
	RunOnce(ctx context.Context, repair bool) (*reconciler.Report, error)
}

// InstanceLister lists live service instances.
type InstanceLister interface {
	ActiveInstances(ctx context.Context, serviceType string) ([]registry.ServiceInfo, error)
}

// Options tunes the handlers.
type Options struct {
	ServiceType    string
	RequestTimeout time.Duration
	SignInRate     float64 // sign-in attempts per second across the instance
	SignInBurst    int
}

// LedgerAPIHandlers holds references to the services that handle business logic.
type LedgerAPIHandlers struct {
	Ledger      *service.LedgerService
	Access      *service.AccessService
	Leaderboard *service.LeaderboardService
	Auth        *service.AuthService
	Reconciler  Reconciler     // optional
	Instances   InstanceLister // optional

	serviceType   string
	timeout       time.Duration
	signInLimiter *rate.Limiter
	validate      *validator.Validate
	log           *logger.Logger
}

// NewLedgerAPIHandlers is the constructor for the API handlers.
func NewLedgerAPIHandlers(
	ledger *service.LedgerService,
	access *service.AccessService,
	leaderboard *service.LeaderboardService,
	auth *service.AuthService,
	opts Options,
	log *logger.Logger,
) *LedgerAPIHandlers {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.SignInRate <= 0 {
		opts.SignInRate = 1
	}
	if opts.SignInBurst <= 0 {
		opts.SignInBurst = 5
	}
	return &LedgerAPIHandlers{
		Ledger:        ledger,
		Access:        access,
		Leaderboard:   leaderboard,
		Auth:          auth,
		serviceType:   opts.ServiceType,
		timeout:       opts.RequestTimeout,
		signInLimiter: rate.NewLimiter(rate.Limit(opts.SignInRate), opts.SignInBurst),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log.WithField("component", "api"),
	}
}

// --- Request/Response DTOs ---

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
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

// AdjustmentRequest accepts delta as a JSON number or a numeric string.
// TransactionID is optional; resubmitting with the same id applies the adjustment once.
type AdjustmentRequest struct {
	TransactionID string      `json:"transactionId,omitempty" validate:"omitempty,uuid"`
	TeamID        string      `json:"teamId" validate:"required"`
	Delta         json.Number `json:"delta" validate:"required"`
	Comment       string      `json:"comment" validate:"required"`
}

type ReconcileRequest struct {
	Repair bool `json:"repair"`
}

type TransactionView struct {
	models.Transaction
	Kind string `json:"kind"`
}

type LeaderboardResponse struct {
	Teams []models.RankedTeam `json:"teams"`
}

type TeamDashboardResponse struct {
	Team         *models.Team      `json:"team"`
	Transactions []TransactionView `json:"transactions"`
}

type AdminDashboardResponse struct {
	Teams        []models.Team     `json:"teams"`
	Transactions []TransactionView `json:"transactions"`
}

type BalanceResponse struct {
	TeamID string `json:"teamId"`
	Points int64  `json:"points"`
}

type TransactionsResponse struct {
	Transactions []TransactionView `json:"transactions"`
}

type InstancesResponse struct {
	Instances []registry.ServiceInfo `json:"instances"`
}

func transactionViews(txs []models.Transaction) []TransactionView {
	views := make([]TransactionView, len(txs))
	for i, tx := range txs {
		views[i] = TransactionView{Transaction: tx, Kind: tx.Kind()}
	}
	return views
}

// RegisterRoutes sets up all the API routes for the ledger service.
func (h *LedgerAPIHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/leaderboard", h.LeaderboardHandler).Methods(http.MethodGet)

	router.Handle("/auth/signin", h.rateLimited(h.SignInHandler)).Methods(http.MethodPost)
	router.Handle("/auth/signout", h.withSession(h.SignOutHandler)).Methods(http.MethodPost)
	router.Handle("/session/role", h.withSession(h.RoleHandler)).Methods(http.MethodGet)

	router.Handle("/team/dashboard", h.withSession(h.TeamDashboardHandler)).Methods(http.MethodGet)
	router.Handle("/admin/dashboard", h.withSession(h.AdminDashboardHandler)).Methods(http.MethodGet)

	router.Handle("/admin/teams", h.adminOnly(h.ListTeamsHandler)).Methods(http.MethodGet)
	router.Handle("/admin/adjustments", h.adminOnly(h.ApplyAdjustmentHandler)).Methods(http.MethodPost)
	router.Handle("/admin/transactions", h.adminOnly(h.ListAllTransactionsHandler)).Methods(http.MethodGet)
	router.Handle("/admin/reconcile", h.adminOnly(h.ReconcileHandler)).Methods(http.MethodPost)
	router.Handle("/admin/instances", h.adminOnly(h.InstancesHandler)).Methods(http.MethodGet)
	router.Handle("/teams/{id}", h.adminOnly(h.TeamHandler)).Methods(http.MethodGet)
	router.Handle("/teams/{id}/balance", h.adminOnly(h.BalanceHandler)).Methods(http.MethodGet)
	router.Handle("/teams/{id}/transactions", h.adminOnly(h.TeamTransactionsHandler)).Methods(http.MethodGet)
}

// --- Handler Methods ---

// LeaderboardHandler returns every team ranked by points.
// GET /leaderboard
func (h *LedgerAPIHandlers) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	rows, err := h.Leaderboard.ListRanked(ctx)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	_ = api.WriteJSON(w, http.StatusOK, LeaderboardResponse{Teams: rows})
}

// SignInHandler opens a session.
// POST /auth/signin
func (h *LedgerAPIHandlers) SignInHandler(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	sess, err := h.Auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := SignInResponse{Token: sess.Token, SubjectID: sess.SubjectID, Email: sess.Email}
	role, err := h.Access.ResolveRole(ctx, sess.SubjectID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp.Role = role.Kind.String()
	resp.Landing = role.LandingPath()
	_ = api.WriteJSON(w, http.StatusOK, resp)
}

// SignOutHandler revokes the caller's session.
// POST /auth/signout
func (h *LedgerAPIHandlers) SignOutHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.Auth.SignOut(ctx, sess); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RoleHandler reports the caller's role and the dashboard it routes to.
// GET /session/role
func (h *LedgerAPIHandlers) RoleHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	role, err := h.Access.ResolveRole(ctx, sess.SubjectID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	_ = api.WriteJSON(w, http.StatusOK, RoleResponse{Role: role.Kind.String(), Landing: role.LandingPath(), Team: role.Team})
}

// TeamDashboardHandler returns the caller's team and its latest transactions.
// Administrators are sent to the admin dashboard.
// GET /team/dashboard
func (h *LedgerAPIHandlers) TeamDashboardHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	role, err := h.Access.ResolveRole(ctx, sess.SubjectID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	switch role.Kind {
	case service.RoleAdministrator:
		http.Redirect(w, r, role.LandingPath(), http.StatusSeeOther)
	case service.RoleTeamMember:
		txs, err := h.Ledger.ListTransactions(ctx, service.TransactionFilter{TeamID: role.Team.ID}, service.DefaultTeamTransactionLimit)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		_ = api.WriteJSON(w, http.StatusOK, TeamDashboardResponse{Team: role.Team, Transactions: transactionViews(txs)})
	default:
		h.writeServiceError(w, r, apperrors.NewNotLinkedError(sess.SubjectID))
	}
}

// AdminDashboardHandler returns all teams and the latest transactions across them.
// Team members are sent to their team dashboard.
// GET /admin/dashboard
func (h *LedgerAPIHandlers) AdminDashboardHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	role, err := h.Access.ResolveRole(ctx, sess.SubjectID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	switch role.Kind {
	case service.RoleAdministrator:
		teams, err := h.Ledger.ListTeams(ctx)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		txs, err := h.Ledger.ListTransactions(ctx, service.TransactionFilter{}, service.DefaultGlobalTransactionLimit)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		_ = api.WriteJSON(w, http.StatusOK, AdminDashboardResponse{Teams: teams, Transactions: transactionViews(txs)})
	case service.RoleTeamMember:
		http.Redirect(w, r, role.LandingPath(), http.StatusSeeOther)
	default:
		h.writeServiceError(w, r, apperrors.NewNotLinkedError(sess.SubjectID))
	}
}

// ListTeamsHandler returns all teams ordered by name.
// GET /admin/teams
func (h *LedgerAPIHandlers) ListTeamsHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	teams, err := h.Ledger.ListTeams(ctx)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	_ = api.WriteJSON(w, http.StatusOK, teams)
}

// ApplyAdjustmentHandler records a signed point adjustment.
// POST /admin/adjustments
func (h *LedgerAPIHandlers) ApplyAdjustmentHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	delta, err := service.ParseDelta(req.Delta.String())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	tx, err := h.Ledger.ApplyAdjustmentWithID(ctx, sess, req.TransactionID, req.TeamID, delta, req.Comment)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	_ = api.WriteJSON(w, http.StatusCreated, TransactionView{Transaction: *tx, Kind: tx.Kind()})
}

// ListAllTransactionsHandler returns the latest transactions across all teams.
// GET /admin/transactions?limit=N
func (h *LedgerAPIHandlers) ListAllTransactionsHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	h.listTransactions(w, r, service.TransactionFilter{})
}

// TeamTransactionsHandler returns the latest transactions of one team.
// GET /teams/{id}/transactions?limit=N
func (h *LedgerAPIHandlers) TeamTransactionsHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	h.listTransactions(w, r, service.TransactionFilter{TeamID: mux.Vars(r)["id"]})
}

func (h *LedgerAPIHandlers) listTransactions(w http.ResponseWriter, r *http.Request, filter service.TransactionFilter) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			api.WriteBadRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	txs, err := h.Ledger.ListTransactions(ctx, filter, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	_ = api.WriteJSON(w, http.StatusOK, TransactionsResponse{Transactions: transactionViews(txs)})
}

// TeamHandler returns one team.
// GET /teams/{id}
func (h *LedgerAPIHandlers) TeamHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	team, err := h.Ledger.GetTeam(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	_ = api.WriteJSON(w, http.StatusOK, team)
}

// BalanceHandler returns a team's current points.
// GET /teams/{id}/balance
func (h *LedgerAPIHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	teamID := mux.Vars(r)["id"]

	ctx, cancel := h.requestContext(r)
	defer cancel()

	points, err := h.Ledger.GetBalance(ctx, teamID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	_ = api.WriteJSON(w, http.StatusOK, BalanceResponse{TeamID: teamID, Points: points})
}

// ReconcileHandler runs a reconcile pass now.
// POST /admin/reconcile
func (h *LedgerAPIHandlers) ReconcileHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	if h.Reconciler == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "reconciler is not configured")
		return
	}

	var req ReconcileRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	// A full pass reads every transaction; it gets more time than a regular request.
	ctx, cancel := context.WithTimeout(r.Context(), 6*h.timeout)
	defer cancel()

	report, err := h.Reconciler.RunOnce(ctx, req.Repair)
	if errors.Is(err, reconciler.ErrRepairUnavailable) {
		api.WriteError(w, http.StatusConflict, "repair is disabled while adjustments are written without transactions")
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.log.WithContext(ctx).WithFields(map[string]interface{}{
		"admin_uid": sess.SubjectID,
		"drifted":   len(report.Drifted),
		"repair":    req.Repair,
	}).Info("On-demand reconcile finished")
	_ = api.WriteJSON(w, http.StatusOK, report)
}

// InstancesHandler lists live instances of this service.
// GET /admin/instances
func (h *LedgerAPIHandlers) InstancesHandler(w http.ResponseWriter, r *http.Request, sess service.Session) {
	if h.Instances == nil {
		_ = api.WriteJSON(w, http.StatusOK, InstancesResponse{Instances: []registry.ServiceInfo{}})
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	instances, err := h.Instances.ActiveInstances(ctx, h.serviceType)
	if err != nil {
		h.log.WithContext(ctx).WithError(err).Warn("Failed to list instances")
		api.WriteError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	_ = api.WriteJSON(w, http.StatusOK, InstancesResponse{Instances: instances})
}

// decode reads and validates a JSON body, writing 400 on failure.
func (h *LedgerAPIHandlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			api.WriteBadRequest(w, validationMessage(verrs[0]))
			return false
		}
		api.WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "uuid":
		return field + " must be a UUID"
	default:
		return field + " is invalid"
	}
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (h *LedgerAPIHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperrors.IsAuthentication(err):
		api.WriteUnauthorized(w, err.Error())
	case apperrors.IsValidation(err):
		api.WriteBadRequest(w, err.Error())
	case apperrors.IsNotLinked(err), apperrors.IsAuthorization(err):
		api.WriteForbidden(w, err.Error())
	case apperrors.IsNotFound(err):
		api.WriteNotFound(w, err.Error())
	case errors.Is(err, apperrors.ErrAmbiguousTeamLink):
		api.WriteError(w, http.StatusConflict, err.Error())
	case apperrors.IsStore(err), errors.Is(err, context.DeadlineExceeded):
		h.log.WithContext(r.Context()).WithError(err).Error("Store unavailable")
		api.WriteError(w, http.StatusServiceUnavailable, "Service temporarily unavailable, please try again")
	default:
		h.log.WithContext(r.Context()).WithError(err).Error("Unhandled error")
		api.WriteInternalServerError(w, "Internal server error")
	}
}

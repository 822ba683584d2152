package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ftotnem/POINTS-LEDGER/shared/api"
)

func TestLedgerClientSendsTokenAndDeltaAsString(t *testing.T) {
	var got AdjustmentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/adjustments", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"id": "tx-1", "teamId": got.TeamID, "delta": -4, "kind": "Removed"})
	}))
	defer srv.Close()

	client := NewLedgerClient(srv.URL, srv.Client()).WithToken("tok-1")
	tx, err := client.ApplyAdjustment(context.Background(), "falcons", -4, "late")
	require.NoError(t, err)

	assert.Equal(t, AdjustmentRequest{TeamID: "falcons", Delta: "-4", Comment: "late"}, got)
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, int64(-4), tx.Delta)
	assert.Equal(t, "Removed", tx.Kind)
}

func TestLedgerClientSurfacesRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
	}))
	defer srv.Close()

	_, err := NewLedgerClient(srv.URL, srv.Client()).TeamDashboard(context.Background())
	location, ok := IsRedirect(err)
	require.True(t, ok)
	assert.Equal(t, "/admin/dashboard", location)

	_, ok = IsRedirect(assert.AnError)
	assert.False(t, ok)
}

func TestLedgerClientTransactionsPath(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		_ = api.WriteJSON(w, http.StatusOK, map[string]interface{}{"transactions": []interface{}{}})
	}))
	defer srv.Close()

	client := NewLedgerClient(srv.URL, srv.Client())
	_, err := client.Transactions(context.Background(), "", 0)
	require.NoError(t, err)
	_, err = client.Transactions(context.Background(), "team 7", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"/admin/transactions", "/teams/team%207/transactions?limit=10"}, paths)
}

func TestLedgerClientMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.WriteNotFound(w, "team eagles not found")
	}))
	defer srv.Close()

	_, err := NewLedgerClient(srv.URL, srv.Client()).WithToken("tok").Balance(context.Background(), "eagles")
	require.ErrorIs(t, err, api.ErrNotFound)
	assert.Contains(t, err.Error(), "team eagles not found")
}

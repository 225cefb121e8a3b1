package server_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"atelier-backend/internal/events"
	"atelier-backend/internal/models"
	"atelier-backend/internal/server"
	"atelier-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dashboardCounts struct {
	DraftQuotes    int64 `json:"draft_quotes"`
	ActiveProjects int64 `json:"active_projects"`
}

func TestDashboardFollowsQuoteAndProjectWrites(t *testing.T) {
	f := testutil.NewFixture(t)
	store := testutil.NewMemoryCache()
	app := server.New(f.Cfg, server.Deps{Cache: store, Events: &events.Recorder{}})
	token := f.OwnerToken(t)

	summary := func() dashboardCounts {
		t.Helper()
		status, raw := call(t, app, http.MethodGet, "/api/dashboard/summary", token, nil)
		require.Equal(t, http.StatusOK, status, string(raw))
		var d dashboardCounts
		require.NoError(t, json.Unmarshal(raw, &d))
		return d
	}

	assert.Equal(t, dashboardCounts{DraftQuotes: 0, ActiveProjects: 1}, summary())
	require.Equal(t, 1, store.Len())

	status, raw := call(t, app, http.MethodPost, "/api/quotes", token, map[string]any{
		"project_id": f.Project.ID,
		"title":      "Site vitrine",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var q models.Quote
	require.NoError(t, json.Unmarshal(raw, &q))
	assert.Equal(t, int64(1), summary().DraftQuotes)

	status, raw = call(t, app, http.MethodPatch, "/api/quotes/"+itoa(q.ID), token, map[string]string{"status": "SENT"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, int64(0), summary().DraftQuotes)

	status, raw = call(t, app, http.MethodPost, "/api/projects", token, map[string]string{"name": "Catalogue printemps"})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var p models.Project
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, int64(2), summary().ActiveProjects)

	status, raw = call(t, app, http.MethodPut, "/api/projects/"+itoa(p.ID), token, map[string]string{"status": "DONE"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, int64(1), summary().ActiveProjects)

	status, raw = call(t, app, http.MethodPut, "/api/projects/"+itoa(p.ID), token, map[string]string{"status": "ACTIVE"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, int64(2), summary().ActiveProjects)

	status, _ = call(t, app, http.MethodDelete, "/api/projects/"+itoa(p.ID), token, nil)
	require.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, int64(1), summary().ActiveProjects)

	// restoring the deleted project through the audit log counts it again
	var del models.AuditLog
	require.NoError(t, f.DB.Where("entity_type = ? AND entity_id = ? AND action = ?", "project", p.ID, models.AuditActionDelete).First(&del).Error)
	status, raw = call(t, app, http.MethodPost, "/api/audit-logs/"+itoa(del.ID)+"/undo", token, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, int64(2), summary().ActiveProjects)
}

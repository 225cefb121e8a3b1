package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"atelier-backend/internal/cache"
	"atelier-backend/internal/events"
	"atelier-backend/internal/models"
	"atelier-backend/internal/server"
	"atelier-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) (*fiber.App, *testutil.Fixture, *events.Recorder) {
	t.Helper()
	f := testutil.NewFixture(t)
	rec := &events.Recorder{}
	app := server.New(f.Cfg, server.Deps{Cache: cache.Nop{}, Events: rec})
	return app, f, rec
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func errorMessage(t *testing.T, raw []byte) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &e))
	return e.Error
}

func TestHealthAndMetrics(t *testing.T) {
	app, _, _ := newApp(t)

	status, body := call(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	status, body = call(t, app, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestRegisterThenLogin(t *testing.T) {
	app, _, _ := newApp(t)

	status, _ := call(t, app, http.MethodPost, "/api/auth/register", "", map[string]string{
		"business_name": "Studio Soleil",
		"name":          "Inès Caron",
		"email":         "ines@studio-soleil.fr",
		"password":      testutil.Password,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ines@studio-soleil.fr",
		"password": testutil.Password,
	})
	require.Equal(t, http.StatusOK, status)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &login))
	require.NotEmpty(t, login.Token)

	status, _ = call(t, app, http.MethodGet, "/api/auth/me", "Bearer "+login.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ines@studio-soleil.fr",
		"password": "mauvais",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Email ou mot de passe incorrect.", errorMessage(t, body))
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	app, _, _ := newApp(t)

	status, _ := call(t, app, http.MethodGet, "/api/clients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRoleGroups(t *testing.T) {
	app, f, _ := newApp(t)
	viewer := f.Token(t, f.User(t, models.RoleViewer))
	member := f.Token(t, f.User(t, models.RoleMember))

	status, _ := call(t, app, http.MethodGet, "/api/clients", viewer, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := call(t, app, http.MethodPost, "/api/clients", viewer, map[string]string{"name": "Bruno"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Action non autorisée.", errorMessage(t, body))

	status, _ = call(t, app, http.MethodPost, "/api/clients", member, map[string]string{"name": "Bruno"})
	assert.Equal(t, http.StatusCreated, status)

	// financial writes stay with owners and admins
	status, _ = call(t, app, http.MethodPost, "/api/invoices", member, map[string]any{"project_id": f.Project.ID})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, http.MethodPost, "/api/business/members", member, map[string]string{
		"name": "X", "email": "x@atelier-lune.fr", "password": testutil.Password, "role": "MEMBER",
	})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestOtherBusinessIsNotFound(t *testing.T) {
	app, f, _ := newApp(t)
	inv := f.Invoice(t, models.InvoiceDraft, 5000)

	other := models.Business{Name: "Ailleurs", Currency: "EUR"}
	require.NoError(t, f.DB.Create(&other).Error)
	stranger := models.User{BusinessID: other.ID, Name: "Paul", Email: "paul@ailleurs.fr", PasswordHash: "x", Role: models.RoleOwner}
	require.NoError(t, f.DB.Create(&stranger).Error)
	token := f.Token(t, stranger)

	status, body := call(t, app, http.MethodGet, "/api/invoices/"+itoa(inv.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Facture introuvable.", errorMessage(t, body))

	status, _ = call(t, app, http.MethodGet, "/api/clients/"+itoa(f.Client.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestInventoryMovementEndpoints(t *testing.T) {
	app, f, _ := newApp(t)
	owner := f.OwnerToken(t)
	p := f.Product(t, "Cadre chêne", 4500, testutil.Int64(1200))

	status, body := call(t, app, http.MethodPost, "/api/inventory/movements", owner, map[string]any{
		"product_id": p.ID, "type": "IN", "quantity": 10, "unit_cost_cents": 1200, "date": "2026-03-02",
	})
	require.Equal(t, http.StatusCreated, status)
	var in struct {
		AmountCents int64 `json:"amount_cents"`
	}
	require.NoError(t, json.Unmarshal(body, &in))
	assert.Equal(t, int64(12000), in.AmountCents)

	status, body = call(t, app, http.MethodPost, "/api/inventory/movements", owner, map[string]any{
		"product_id": p.ID, "type": "OUT", "quantity": 11,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Stock insuffisant : 10 disponible(s).", errorMessage(t, body))

	status, _ = call(t, app, http.MethodPost, "/api/inventory/movements", owner, map[string]any{
		"product_id": p.ID, "type": "OUT", "quantity": 4,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body = call(t, app, http.MethodGet, "/api/products/"+itoa(p.ID)+"/stock", owner, nil)
	require.Equal(t, http.StatusOK, status)
	var level struct {
		OnHand    int64 `json:"on_hand"`
		Available int64 `json:"available"`
	}
	require.NoError(t, json.Unmarshal(body, &level))
	assert.Equal(t, int64(6), level.OnHand)
	assert.Equal(t, int64(6), level.Available)

	var expenses int64
	f.DB.Model(&models.Finance{}).Where("business_id = ? AND type = ?", f.Business.ID, models.FinanceExpense).Count(&expenses)
	assert.Equal(t, int64(1), expenses)

	status, body = call(t, app, http.MethodGet, "/api/inventory/movements?product_id="+itoa(p.ID), owner, nil)
	require.Equal(t, http.StatusOK, status)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestLastOwnerCannotBeDemoted(t *testing.T) {
	app, f, _ := newApp(t)
	owner := f.OwnerToken(t)

	status, body := call(t, app, http.MethodPatch, "/api/business/members/"+itoa(f.Owner.ID), owner, map[string]string{"role": "ADMIN"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "L'entreprise doit conserver au moins un propriétaire.", errorMessage(t, body))

	status, body = call(t, app, http.MethodPost, "/api/business/members", owner, map[string]string{
		"name": "Léa Girard", "email": "lea@atelier-lune.fr", "password": testutil.Password, "role": "owner",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = call(t, app, http.MethodPatch, "/api/business/members/"+itoa(f.Owner.ID), owner, map[string]string{"role": "ADMIN"})
	assert.Equal(t, http.StatusOK, status)
}

func TestApplyTemplateAppendsTasks(t *testing.T) {
	app, f, _ := newApp(t)
	owner := f.OwnerToken(t)
	project := "/api/projects/" + itoa(f.Project.ID)

	status, _ := call(t, app, http.MethodPost, project+"/tasks", owner, map[string]string{"title": "Brief client"})
	require.Equal(t, http.StatusCreated, status)

	status, body := call(t, app, http.MethodPost, "/api/task-templates", owner, map[string]any{
		"name":  "Site vitrine",
		"steps": []string{"Maquettes", "Intégration", "Mise en ligne"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var tpl models.TaskTemplate
	require.NoError(t, json.Unmarshal(body, &tpl))

	status, body = call(t, app, http.MethodPost, project+"/apply-template", owner, map[string]uint{"template_id": tpl.ID})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = call(t, app, http.MethodGet, project+"/tasks", owner, nil)
	require.Equal(t, http.StatusOK, status)
	var list []models.Task
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 4)
	titles := make([]string, 0, len(list))
	for i, task := range list {
		assert.Equal(t, i, task.Position)
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"Brief client", "Maquettes", "Intégration", "Mise en ligne"}, titles)

	status, body = call(t, app, http.MethodPatch, "/api/tasks/"+itoa(list[1].ID), owner, map[string]string{"status": "DONE"})
	require.Equal(t, http.StatusOK, status, string(body))
	var done models.Task
	require.NoError(t, json.Unmarshal(body, &done))
	assert.NotNil(t, done.DoneAt)
}

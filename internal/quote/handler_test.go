package quote_test

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

func request(t *testing.T, app *fiber.App, token, method, url string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, url, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

type quoteBody struct {
	ID           uint    `json:"id"`
	Status       string  `json:"status"`
	Number       *string `json:"number"`
	TotalCents   int64   `json:"total_cents"`
	DepositCents int64   `json:"deposit_cents"`
	ValidUntil   *string `json:"valid_until"`
	SignedAt     *string `json:"signed_at"`
}

func TestQuoteLifecycleAndConvert(t *testing.T) {
	f := testutil.NewFixture(t)
	rec := &events.Recorder{}
	app := server.New(f.Cfg, server.Deps{Cache: cache.Nop{}, Events: rec})
	token := f.OwnerToken(t)

	status, raw := request(t, app, token, http.MethodPost, "/api/quotes", map[string]any{
		"project_id":      f.Project.ID,
		"title":           "Identité visuelle",
		"deposit_percent": 30,
		"items": []map[string]any{
			{"label": "Logo", "quantity": 1, "unit_price_cents": 80000},
			{"label": "Charte", "quantity": 2, "unit_price_cents": 25000, "discount_type": "PERCENT", "discount_value": 10},
		},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var q quoteBody
	require.NoError(t, json.Unmarshal(raw, &q))
	assert.Equal(t, "DRAFT", q.Status)
	assert.Equal(t, int64(125000), q.TotalCents)
	assert.Equal(t, int64(37500), q.DepositCents)
	assert.Nil(t, q.Number)

	base := "/api/quotes/" + strconv.FormatUint(uint64(q.ID), 10)

	// a draft cannot become an invoice
	status, _ = request(t, app, token, http.MethodPost, base+"/convert", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = request(t, app, token, http.MethodPatch, base, map[string]string{"status": "SENT"})
	require.Equal(t, http.StatusOK, status, string(raw))
	require.NoError(t, json.Unmarshal(raw, &q))
	assert.Equal(t, "SENT", q.Status)
	require.NotNil(t, q.Number)
	assert.Regexp(t, `^DEV-\d{4}-0001$`, *q.Number)
	assert.NotNil(t, q.ValidUntil)

	status, raw = request(t, app, token, http.MethodPatch, base, map[string]string{"title": "Autre titre"})
	assert.Equal(t, http.StatusBadRequest, status, string(raw))

	status, raw = request(t, app, token, http.MethodPatch, base, map[string]string{"status": "SIGNED"})
	require.Equal(t, http.StatusOK, status, string(raw))
	require.NoError(t, json.Unmarshal(raw, &q))
	assert.NotNil(t, q.SignedAt)

	status, raw = request(t, app, token, http.MethodPost, base+"/convert", nil)
	require.Equal(t, http.StatusCreated, status, string(raw))
	var inv models.Invoice
	require.NoError(t, json.Unmarshal(raw, &inv))
	assert.Equal(t, models.InvoiceDraft, inv.Status)
	assert.Equal(t, int64(125000), inv.TotalCents)
	require.NotNil(t, inv.QuoteID)
	assert.Equal(t, q.ID, *inv.QuoteID)
	assert.Len(t, inv.Items, 2)

	status, _ = request(t, app, token, http.MethodPost, base+"/convert", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = request(t, app, token, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		InvoiceID *uint `json:"invoice_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &detail))
	require.NotNil(t, detail.InvoiceID)
	assert.Equal(t, inv.ID, *detail.InvoiceID)

	status, _ = request(t, app, token, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	assert.Equal(t, []string{events.QuoteSent, events.QuoteSigned}, rec.Types())
}

func TestQuoteTransitionGuard(t *testing.T) {
	f := testutil.NewFixture(t)
	app := server.New(f.Cfg, server.Deps{})
	token := f.OwnerToken(t)

	status, raw := request(t, app, token, http.MethodPost, "/api/quotes", map[string]any{
		"project_id": f.Project.ID,
		"title":      "Atelier",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var q quoteBody
	require.NoError(t, json.Unmarshal(raw, &q))
	base := "/api/quotes/" + strconv.FormatUint(uint64(q.ID), 10)

	status, raw = request(t, app, token, http.MethodPatch, base, map[string]string{"status": "SIGNED"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(raw), "Changement de statut non autorisé.")

	status, _ = request(t, app, token, http.MethodPatch, base, map[string]string{"status": "DRAFT"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = request(t, app, token, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestReplaceItemsRecomputesDeposit(t *testing.T) {
	f := testutil.NewFixture(t)
	app := server.New(f.Cfg, server.Deps{})
	token := f.OwnerToken(t)

	type totals struct {
		TotalCents   int64 `json:"total_cents"`
		DepositCents int64 `json:"deposit_cents"`
		BalanceCents int64 `json:"balance_cents"`
	}
	decode := func(raw []byte) totals {
		var got totals
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, got.TotalCents-got.DepositCents, got.BalanceCents)
		return got
	}

	status, raw := request(t, app, token, http.MethodPost, "/api/quotes", map[string]any{
		"project_id":      f.Project.ID,
		"title":           "Affiches",
		"deposit_percent": 33,
		"items":           []map[string]any{{"label": "Affiche A2", "quantity": 1, "unit_price_cents": 5000}},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	assert.Equal(t, totals{TotalCents: 5000, DepositCents: 1650, BalanceCents: 3350}, decode(raw))
	var q quoteBody
	require.NoError(t, json.Unmarshal(raw, &q))
	base := "/api/quotes/" + strconv.FormatUint(uint64(q.ID), 10)

	status, raw = request(t, app, token, http.MethodPut, base+"/items", map[string]any{
		"items": []map[string]any{{"label": "Affiche A3", "quantity": 3, "unit_price_cents": 3333}},
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, totals{TotalCents: 9999, DepositCents: 3300, BalanceCents: 6699}, decode(raw))

	status, raw = request(t, app, token, http.MethodPatch, base, map[string]int{"deposit_percent": 50})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, totals{TotalCents: 9999, DepositCents: 5000, BalanceCents: 4999}, decode(raw))

	status, raw = request(t, app, token, http.MethodPatch, base, map[string]string{"status": "SENT"})
	require.Equal(t, http.StatusOK, status, string(raw))
	status, raw = request(t, app, token, http.MethodPut, base+"/items", map[string]any{
		"items": []map[string]any{{"label": "Affiche A1", "quantity": 1, "unit_price_cents": 100}},
	})
	assert.Equal(t, http.StatusBadRequest, status, string(raw))

	var stored models.Quote
	require.NoError(t, f.DB.First(&stored, q.ID).Error)
	assert.Equal(t, int64(9999), stored.TotalCents)
	assert.Equal(t, stored.TotalCents-stored.DepositCents, stored.BalanceCents)
}

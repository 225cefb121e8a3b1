package invoice_test

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

type harness struct {
	app   *fiber.App
	f     *testutil.Fixture
	rec   *events.Recorder
	token string
}

func setup(t *testing.T) *harness {
	t.Helper()
	f := testutil.NewFixture(t)
	rec := &events.Recorder{}
	return &harness{
		app:   server.New(f.Cfg, server.Deps{Cache: cache.Nop{}, Events: rec}),
		f:     f,
		rec:   rec,
		token: f.OwnerToken(t),
	}
}

func (h *harness) do(t *testing.T, method, path string, body any) (int, []byte) {
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
	req.Header.Set("Authorization", h.token)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func errorOf(t *testing.T, raw []byte) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &e))
	return e.Error
}

type invoiceBody struct {
	ID             uint    `json:"id"`
	Status         string  `json:"status"`
	Number         *string `json:"number"`
	PaidCents      int64   `json:"paid_cents"`
	RemainingCents int64   `json:"remaining_cents"`
	PaymentStatus  string  `json:"payment_status"`
}

func decodeInvoice(t *testing.T, raw []byte) invoiceBody {
	t.Helper()
	var b invoiceBody
	require.NoError(t, json.Unmarshal(raw, &b))
	return b
}

func path(inv models.Invoice, suffix string) string {
	return "/api/invoices/" + strconv.FormatUint(uint64(inv.ID), 10) + suffix
}

func (h *harness) send(t *testing.T, inv models.Invoice) {
	t.Helper()
	status, body := h.do(t, http.MethodPatch, path(inv, ""), map[string]string{"status": "SENT"})
	require.Equal(t, http.StatusOK, status, string(body))
}

func TestSendIssuesNumberAndSnapshots(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 12000)

	status, raw := h.do(t, http.MethodPatch, path(inv, ""), map[string]string{"status": "SENT"})
	require.Equal(t, http.StatusOK, status)
	got := decodeInvoice(t, raw)
	assert.Equal(t, "SENT", got.Status)
	require.NotNil(t, got.Number)
	assert.Regexp(t, `^FAC-\d{4}-0001$`, *got.Number)

	var stored models.Invoice
	require.NoError(t, h.f.DB.First(&stored, inv.ID).Error)
	assert.NotNil(t, stored.IssuedAt)
	require.NotNil(t, stored.DueAt)
	assert.Equal(t, 30, int(stored.DueAt.Sub(*stored.IssuedAt).Hours()/24))
	assert.Contains(t, string(stored.IssuerSnapshot), "Atelier Lune SARL")

	assert.Equal(t, []string{events.InvoiceSent}, h.rec.Types())
}

func TestMarkPaidTwice(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 10000)
	h.send(t, inv)

	status, raw := h.do(t, http.MethodPost, path(inv, "/mark-paid"), nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	got := decodeInvoice(t, raw)
	assert.Equal(t, "PAID", got.Status)
	assert.Equal(t, int64(10000), got.PaidCents)
	assert.Equal(t, int64(0), got.RemainingCents)
	assert.Equal(t, "PAID", got.PaymentStatus)

	status, raw = h.do(t, http.MethodPost, path(inv, "/mark-paid"), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Facture déjà soldée.", errorOf(t, raw))

	var payments int64
	h.f.DB.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&payments)
	assert.Equal(t, int64(1), payments)

	var income models.Finance
	require.NoError(t, h.f.DB.Where("source_type = ? AND source_id = ?", models.FinanceSourceInvoice, inv.ID).First(&income).Error)
	assert.Equal(t, models.FinanceIncome, income.Type)
	assert.Equal(t, int64(10000), income.AmountCents)
	assert.Equal(t, "Ventes", income.Category)

	var sales int64
	h.f.DB.Model(&models.LedgerEntry{}).
		Where("source_type = ? AND source_id = ?", models.SourceInvoiceCashSale, inv.ID).
		Count(&sales)
	assert.Equal(t, int64(1), sales)

	assert.Equal(t, []string{events.InvoiceSent, events.PaymentRecorded, events.InvoicePaid}, h.rec.Types())
}

func TestMarkPaidOnDraftIsRejected(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 10000)

	status, raw := h.do(t, http.MethodPost, path(inv, "/mark-paid"), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Changement de statut non autorisé.", errorOf(t, raw))
}

func TestPaidInvoiceCannotGoBack(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 10000)
	h.send(t, inv)

	status, raw := h.do(t, http.MethodPost, path(inv, "/payments"), map[string]any{"amount_cents": 10000, "method": "card"})
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, raw = h.do(t, http.MethodPatch, path(inv, ""), map[string]string{"status": "PAID"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "PAID", decodeInvoice(t, raw).Status)

	status, raw = h.do(t, http.MethodPatch, path(inv, ""), map[string]string{"status": "SENT"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Changement de statut non autorisé.", errorOf(t, raw))
}

func TestPaidNeedsFullPayment(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 10000)
	h.send(t, inv)

	status, _ := h.do(t, http.MethodPost, path(inv, "/payments"), map[string]any{"amount_cents": 4000})
	require.Equal(t, http.StatusCreated, status)

	status, raw := h.do(t, http.MethodPatch, path(inv, ""), map[string]string{"status": "PAID"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "La facture n'est pas entièrement réglée.", errorOf(t, raw))

	status, raw = h.do(t, http.MethodGet, path(inv, ""), nil)
	require.Equal(t, http.StatusOK, status)
	got := decodeInvoice(t, raw)
	assert.Equal(t, "SENT", got.Status)
	assert.Equal(t, int64(6000), got.RemainingCents)
	assert.Equal(t, "PARTIAL", got.PaymentStatus)
}

func TestPaymentRules(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 10000)

	status, raw := h.do(t, http.MethodPost, path(inv, "/payments"), map[string]any{"amount_cents": 1000})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "La facture doit être envoyée avant d'enregistrer un paiement.", errorOf(t, raw))

	h.send(t, inv)

	status, raw = h.do(t, http.MethodPost, path(inv, "/payments"), map[string]any{"amount_cents": 10001})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Le montant dépasse le reste à payer.", errorOf(t, raw))

	status, _ = h.do(t, http.MethodPost, path(inv, "/payments"), map[string]any{"amount_cents": 0})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodPost, path(inv, "/payments"), map[string]any{"amount_cents": 500, "method": "bitcoin"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeletePaymentReopensBalance(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 8000)
	h.send(t, inv)

	status, raw := h.do(t, http.MethodPost, path(inv, "/payments"), map[string]any{"amount_cents": 3000})
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		Payment models.Payment `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))

	status, _ = h.do(t, http.MethodDelete, path(inv, "/payments/"+strconv.FormatUint(uint64(created.Payment.ID), 10)), nil)
	require.Equal(t, http.StatusNoContent, status)

	status, raw = h.do(t, http.MethodGet, path(inv, "/payments"), nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Payments       []models.Payment `json:"payments"`
		RemainingCents int64            `json:"remaining_cents"`
		PaymentStatus  string           `json:"payment_status"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Empty(t, list.Payments)
	assert.Equal(t, int64(8000), list.RemainingCents)
	assert.Equal(t, "UNPAID", list.PaymentStatus)
}

func TestCancelWithPaymentsIsRejected(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 5000)
	h.send(t, inv)
	h.f.Payment(t, inv, 1000)

	status, raw := h.do(t, http.MethodPatch, path(inv, ""), map[string]string{"status": "CANCELLED"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "La facture a déjà des paiements enregistrés.", errorOf(t, raw))
}

func TestDeleteOnlyDraftOrCancelled(t *testing.T) {
	h := setup(t)
	sent := h.f.Invoice(t, models.InvoiceDraft, 5000)
	h.send(t, sent)

	status, _ := h.do(t, http.MethodDelete, path(sent, ""), nil)
	assert.Equal(t, http.StatusBadRequest, status)

	draft := h.f.Invoice(t, models.InvoiceDraft, 5000)
	status, _ = h.do(t, http.MethodDelete, path(draft, ""), nil)
	assert.Equal(t, http.StatusNoContent, status)

	var n int64
	h.f.DB.Model(&models.Invoice{}).Where("id = ?", draft.ID).Count(&n)
	assert.Zero(t, n)
}

func TestFieldsFrozenOnceSent(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 5000)
	h.send(t, inv)

	status, raw := h.do(t, http.MethodPatch, path(inv, ""), map[string]string{"notes": "merci"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Le document n'est plus modifiable (statut différent de brouillon).", errorOf(t, raw))

	status, _ = h.do(t, http.MethodPut, path(inv, "/items"), map[string]any{
		"items": []map[string]any{{"label": "Autre", "quantity": 1, "unit_price_cents": 100}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPaidInvoiceConsumesReservedStock(t *testing.T) {
	h := setup(t)
	p := h.f.Product(t, "Vase grès", 3000, testutil.Int64(900))
	require.NoError(t, h.f.DB.Create(&models.InventoryMovement{
		BusinessID: h.f.Business.ID, ProductID: p.ID, Type: models.MovementIn, Quantity: 5, Date: h.f.Business.CreatedAt,
	}).Error)

	status, raw := h.do(t, http.MethodPost, "/api/invoices", map[string]any{
		"project_id": h.f.Project.ID,
		"items": []map[string]any{
			{"product_id": p.ID, "label": "Vase grès", "quantity": 2, "unit_price_cents": 3000},
		},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	inv := models.Invoice{ID: decodeInvoice(t, raw).ID}

	var reserved int64
	h.f.DB.Model(&models.InventoryReservation{}).Where("invoice_id = ?", inv.ID).Count(&reserved)
	assert.Equal(t, int64(1), reserved)

	h.send(t, inv)
	status, raw = h.do(t, http.MethodPost, path(inv, "/mark-paid"), map[string]string{"method": "CASH"})
	require.Equal(t, http.StatusOK, status, string(raw))

	var out models.InventoryMovement
	require.NoError(t, h.f.DB.Where("invoice_id = ? AND type = ?", inv.ID, models.MovementOut).First(&out).Error)
	assert.Equal(t, int64(2), out.Quantity)

	h.f.DB.Model(&models.InventoryReservation{}).
		Where("invoice_id = ? AND status = ?", inv.ID, models.ReservationActive).
		Count(&reserved)
	assert.Zero(t, reserved)

	var consumption int64
	h.f.DB.Model(&models.LedgerEntry{}).
		Where("source_type = ? AND source_id = ?", models.SourceInvoiceStockConsumption, inv.ID).
		Count(&consumption)
	assert.Equal(t, int64(1), consumption)
}

type totalsBody struct {
	TotalCents   int64 `json:"total_cents"`
	DepositCents int64 `json:"deposit_cents"`
	BalanceCents int64 `json:"balance_cents"`
}

func decodeTotals(t *testing.T, raw []byte) totalsBody {
	t.Helper()
	var b totalsBody
	require.NoError(t, json.Unmarshal(raw, &b))
	assert.Equal(t, b.TotalCents-b.DepositCents, b.BalanceCents)
	return b
}

func TestLineChangesKeepBalanceEqualToTotalMinusDeposit(t *testing.T) {
	h := setup(t)

	status, raw := h.do(t, http.MethodPost, "/api/invoices", map[string]any{
		"project_id":      h.f.Project.ID,
		"deposit_percent": 33,
		"items":           []map[string]any{{"label": "Maquette", "quantity": 1, "unit_price_cents": 5000}},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	inv := models.Invoice{ID: decodeInvoice(t, raw).ID}
	assert.Equal(t, totalsBody{TotalCents: 5000, DepositCents: 1650, BalanceCents: 3350}, decodeTotals(t, raw))

	status, raw = h.do(t, http.MethodPut, path(inv, "/items"), map[string]any{
		"items": []map[string]any{{"label": "Illustration", "quantity": 3, "unit_price_cents": 3333}},
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, totalsBody{TotalCents: 9999, DepositCents: 3300, BalanceCents: 6699}, decodeTotals(t, raw))

	status, raw = h.do(t, http.MethodPatch, path(inv, ""), map[string]int{"deposit_percent": 50})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, totalsBody{TotalCents: 9999, DepositCents: 5000, BalanceCents: 4999}, decodeTotals(t, raw))

	status, raw = h.do(t, http.MethodPut, path(inv, "/items"), map[string]any{"items": []map[string]any{}})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, totalsBody{}, decodeTotals(t, raw))

	var stored models.Invoice
	require.NoError(t, h.f.DB.First(&stored, inv.ID).Error)
	assert.Equal(t, stored.TotalCents-stored.DepositCents, stored.BalanceCents)
}

func TestZeroTotalInvoiceClosesThroughPatch(t *testing.T) {
	h := setup(t)
	inv := h.f.Invoice(t, models.InvoiceDraft, 0)
	h.send(t, inv)

	status, raw := h.do(t, http.MethodPost, path(inv, "/mark-paid"), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Facture déjà soldée.", errorOf(t, raw))

	status, raw = h.do(t, http.MethodPatch, path(inv, ""), map[string]string{"status": "PAID"})
	require.Equal(t, http.StatusOK, status, string(raw))
	got := decodeInvoice(t, raw)
	assert.Equal(t, "PAID", got.Status)
	assert.Equal(t, int64(0), got.RemainingCents)
	assert.Equal(t, "UNPAID", got.PaymentStatus)

	var payments int64
	h.f.DB.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&payments)
	assert.Zero(t, payments)

	var sales int64
	h.f.DB.Model(&models.LedgerEntry{}).
		Where("source_type = ? AND source_id = ?", models.SourceInvoiceCashSale, inv.ID).
		Count(&sales)
	assert.Equal(t, int64(1), sales)
}

func TestInvoiceFromQuoteChecksTheQuote(t *testing.T) {
	h := setup(t)

	other := models.Project{BusinessID: h.f.Business.ID, Name: "Autre", Status: models.ProjectActive}
	require.NoError(t, h.f.DB.Create(&other).Error)

	newQuote := func(projectID uint, status models.QuoteStatus) models.Quote {
		q := models.Quote{BusinessID: h.f.Business.ID, ProjectID: projectID, Status: status, Title: "Devis"}
		require.NoError(t, h.f.DB.Create(&q).Error)
		return q
	}
	create := func(q models.Quote) (int, []byte) {
		return h.do(t, http.MethodPost, "/api/invoices", map[string]any{
			"project_id": h.f.Project.ID,
			"quote_id":   q.ID,
		})
	}

	status, raw := create(newQuote(h.f.Project.ID, models.QuoteDraft))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Seul un devis envoyé ou signé peut être converti.", errorOf(t, raw))

	status, raw = create(newQuote(other.ID, models.QuoteSigned))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Le devis n'appartient pas à ce projet.", errorOf(t, raw))

	sent := newQuote(h.f.Project.ID, models.QuoteSent)
	status, raw = create(sent)
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, raw = create(sent)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Ce devis a déjà été converti en facture.", errorOf(t, raw))

	status, _ = h.do(t, http.MethodPost, "/api/invoices", map[string]any{"project_id": h.f.Project.ID, "quote_id": 9999})
	assert.Equal(t, http.StatusNotFound, status)
}

package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subadmin/internal/events"
	"subadmin/internal/store"
	"subadmin/internal/types"
)

var testNow = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

var admin = types.Actor{ID: "usr_005", Name: "Admin User", Role: types.RoleSystemAdmin, Type: types.ActorTypeUser}

type mockNotifier struct {
	mu   sync.Mutex
	sent []types.Invoice
	to   []types.Requester
}

func (m *mockNotifier) InvoiceSent(_ context.Context, inv types.Invoice, to types.Requester) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, inv)
	m.to = append(m.to, to)
}

type mockRecorder struct {
	moves []string
}

func (m *mockRecorder) RecordTransition(entity types.EntityType, from, to string) {
	m.moves = append(m.moves, string(entity)+":"+from+"->"+to)
}

type fixture struct {
	svc      *Service
	store    *store.Store
	bus      *events.Bus
	clock    *testclock.Clock
	notifier *mockNotifier
	recorder *mockRecorder
	events   []types.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := testclock.NewClock(testNow)
	st, err := store.NewSeeded(store.WithLatency(store.NoLatency()), store.WithClock(clk))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:    st,
		bus:      events.NewBus(logger),
		clock:    clk,
		notifier: &mockNotifier{},
		recorder: &mockRecorder{},
	}
	f.bus.SubscribeAll(func(_ context.Context, e types.Event) { f.events = append(f.events, e) })
	f.svc = NewService(st, f.bus, logger, WithNotifier(f.notifier), WithRecorder(f.recorder))
	return f
}

func (f *fixture) topics() []types.Topic {
	var out []types.Topic
	for _, e := range f.events {
		out = append(out, e.Topic)
	}
	return out
}

func requireCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestComputeTotals(t *testing.T) {
	items := []types.InvoiceLineItem{
		{Quantity: 2, UnitAmount: decimal.RequireFromString("1000")},
		{Quantity: 1, UnitAmount: decimal.RequireFromString("333.33")},
	}
	got := ComputeTotals(items, decimal.NewFromInt(18))

	assert.Equal(t, "2333.33", got.Subtotal.String())
	assert.Equal(t, "420", got.TaxAmount.String())
	assert.Equal(t, "2753.33", got.Amount.String())
}

func TestValidateLineItems(t *testing.T) {
	tests := []struct {
		name  string
		items []LineItemInput
		ok    bool
	}{
		{"empty", nil, false},
		{"blank description", []LineItemInput{{Description: " ", Quantity: 1}}, false},
		{"zero quantity", []LineItemInput{{Description: "x", Quantity: 0}}, false},
		{"negative amount", []LineItemInput{{Description: "x", Quantity: 1, UnitAmount: decimal.NewFromInt(-1)}}, false},
		{"valid", []LineItemInput{{Description: "x", Quantity: 1, UnitAmount: decimal.NewFromInt(5)}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLineItems(tt.items)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			requireCode(t, err, types.ErrCodeValidationLineItems)
		})
	}
}

func TestListRequests_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ListRequests(ctx, RequestFilter{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 5, res.TotalAll)

	res, err = f.svc.ListRequests(ctx, RequestFilter{Query: "NIMBUS", Type: "all"})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "REQ-2025-002", res.Data[0].ID)

	res, err = f.svc.ListRequests(ctx, RequestFilter{Type: string(types.RequestUpgrade)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.SetStatus(ctx, admin, "REQ-2025-001", types.RequestQuoted)
	require.NoError(t, err)
	assert.Equal(t, types.RequestQuoted, r.Status)
	assert.Equal(t, []types.Topic{types.TopicRequests, types.TopicAudit}, f.topics())
	assert.Equal(t, []string{"REQUEST:PENDING->QUOTED"}, f.recorder.moves)

	log, err := f.store.AuditLog(ctx)
	require.NoError(t, err)
	last := log[len(log)-1]
	assert.Equal(t, types.AuditRequestStatusChanged, last.Action)
	assert.Equal(t, "usr_005", last.UserID)
	assert.Equal(t, "QUOTED", last.Meta["to"])
	assert.Equal(t, testNow, last.Timestamp)
}

func TestSetStatus_SameStatusIsNoop(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.SetStatus(context.Background(), admin, "REQ-2025-001", types.RequestPending)
	require.NoError(t, err)
	assert.Equal(t, types.RequestPending, r.Status)
	assert.Empty(t, f.events)
	assert.Equal(t, 2, f.store.Counts()[store.Audit])
}

func TestSetStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, admin, "REQ-2025-002", types.RequestPending)
	requireCode(t, err, types.ErrCodeConflictInvalidTransition)

	_, err = f.svc.SetStatus(ctx, admin, "REQ-2025-001", types.RequestStatus("BOGUS"))
	requireCode(t, err, types.ErrCodeValidationInvalidValue)

	_, err = f.svc.SetStatus(ctx, admin, "REQ-404", types.RequestApproved)
	requireCode(t, err, types.ErrCodeNotFoundRequest)

	assert.Empty(t, f.events)
}

func TestReject_RecordsReason(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Reject(context.Background(), admin, "REQ-2025-004", "budget")
	require.NoError(t, err)
	assert.Equal(t, types.RequestRejected, r.Status)
	assert.Equal(t, "budget", r.RejectReason)
}

func TestSetQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.SetQuote(ctx, admin, "REQ-2025-001", decimal.NewFromInt(12000))
	require.NoError(t, err)
	assert.True(t, r.QuoteAmount.Equal(decimal.NewFromInt(12000)))

	_, err = f.svc.SetQuote(ctx, admin, "REQ-2025-001", decimal.NewFromInt(-1))
	requireCode(t, err, types.ErrCodeValidationAmount)

	_, err = f.svc.SetQuote(ctx, admin, "REQ-2025-002", decimal.NewFromInt(1))
	requireCode(t, err, types.ErrCodeConflictRequestClosed)
}

func TestUpdateRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := 40
	cycle := types.BillingMonthly

	r, err := f.svc.UpdateRequest(ctx, admin, "REQ-2025-004", RequestUpdate{
		Billing:  &cycle,
		MaxUsers: &users,
		Modules:  []string{"Maps"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.BillingMonthly, r.RequestedBilling)
	assert.Equal(t, 40, r.RequestedMaxUsers)
	assert.Equal(t, 300, r.RequestedMaxDataSizeGB)
	assert.Equal(t, []string{"Maps"}, r.RequestedModules)

	_, err = f.svc.UpdateRequest(ctx, admin, "REQ-2025-005", RequestUpdate{MaxUsers: &users})
	requireCode(t, err, types.ErrCodeConflictRequestClosed)
}

func TestCreateDraftQuotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{
		RequestID: "REQ-2025-001",
		LineItems: []LineItemInput{
			{Description: "Yearly plan", Quantity: 1, UnitAmount: decimal.NewFromInt(10000)},
			{Description: "Extra seats", Quantity: 5, UnitAmount: decimal.NewFromInt(100)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "QTN-2025-001", inv.Number)
	assert.Equal(t, types.KindQuotation, inv.Kind)
	assert.Equal(t, types.InvoiceDraft, inv.Status)
	assert.Equal(t, "1", inv.AccountID, "defaults to the requester's account")
	assert.Equal(t, "INR", inv.Currency)
	assert.Equal(t, "10500", inv.Subtotal.String())
	assert.Equal(t, "1890", inv.TaxAmount.String())
	assert.Equal(t, "12390", inv.Amount.String())
	require.NotNil(t, inv.DueAt)
	assert.Equal(t, testNow.Add(15*24*time.Hour), *inv.DueAt)

	r, err := f.store.Request(ctx, "REQ-2025-001")
	require.NoError(t, err)
	assert.Equal(t, types.RequestQuoted, r.Status)
	assert.True(t, r.QuoteAmount.Equal(inv.Amount))

	assert.Contains(t, f.topics(), types.TopicRequests)
	assert.Contains(t, f.topics(), types.TopicInvoices)
	assert.Equal(t, 4, f.store.Counts()[store.Audit])
}

func TestCreateDraftQuotation_DefaultLineItemAndSupersede(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-004"})
	require.NoError(t, err)
	require.Len(t, first.LineItems, 1)
	assert.Equal(t, "UPGRADE", first.LineItems[0].Description)
	assert.Equal(t, "12881.36", first.Subtotal.String())
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(15200)), "got %s", first.Amount)

	zero := decimal.Zero
	second, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-004", TaxRate: &zero, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "QTN-2025-002", second.Number)
	assert.Equal(t, "USD", second.Currency)
	assert.True(t, second.TaxAmount.IsZero())

	old, err := f.store.Invoice(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceVoid, old.Status)
}

func TestCreateDraftQuotation_DefaultLineItemIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var totals []string
	for i := 0; i < 3; i++ {
		qtn, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-004"})
		require.NoError(t, err)
		totals = append(totals, qtn.Subtotal.String()+"+"+qtn.TaxAmount.String()+"="+qtn.Amount.String())
	}
	assert.Equal(t, []string{
		"12881.36+2318.64=15200",
		"12881.36+2318.64=15200",
		"12881.36+2318.64=15200",
	}, totals)

	r, err := f.store.Request(ctx, "REQ-2025-004")
	require.NoError(t, err)
	assert.True(t, r.QuoteAmount.Equal(decimal.NewFromInt(15200)), "got %s", r.QuoteAmount)
}

func TestTaxExclusive(t *testing.T) {
	cases := []struct{ amount, rate, want string }{
		{"11800", "18", "10000"},
		{"15200", "18", "12881.36"},
		{"999", "0", "999"},
	}
	for _, tc := range cases {
		got := TaxExclusive(decimal.RequireFromString(tc.amount), decimal.RequireFromString(tc.rate))
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "%s at %s%%: got %s", tc.amount, tc.rate, got)
	}
}

func TestCreateDraftQuotation_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-002"})
	requireCode(t, err, types.ErrCodeConflictRequestClosed)

	_, err = f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-404"})
	requireCode(t, err, types.ErrCodeNotFoundRequest)

	_, err = f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-001", AccountID: "404"})
	requireCode(t, err, types.ErrCodeNotFoundAccount)

	_, err = f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{
		RequestID: "REQ-2025-001",
		LineItems: []LineItemInput{{Description: "x", Quantity: 0}},
	})
	requireCode(t, err, types.ErrCodeValidationLineItems)

	rate := decimal.NewFromInt(101)
	_, err = f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-001", TaxRate: &rate})
	requireCode(t, err, types.ErrCodeValidationInvalidValue)

	assert.Equal(t, 1, f.store.Counts()[store.Invoices])
}

func TestQuoteToInvoiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qtn, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-001"})
	require.NoError(t, err)

	sent, err := f.svc.MarkSent(ctx, admin, qtn.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceSent, sent.Status)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "priya@acme.com", f.notifier.to[0].Email)

	r, err := f.store.Request(ctx, "REQ-2025-001")
	require.NoError(t, err)
	assert.Equal(t, types.RequestSent, r.Status)

	_, err = f.svc.MarkSent(ctx, admin, qtn.ID)
	requireCode(t, err, types.ErrCodeConflictInvalidTransition)

	r, err = f.svc.Approve(ctx, admin, "REQ-2025-001")
	require.NoError(t, err)
	assert.Equal(t, types.RequestApproved, r.Status)

	res, err := f.svc.ListInvoices(ctx, InvoiceFilter{RequestID: "REQ-2025-001", Kind: string(types.KindInvoice)})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	inv := res.Data[0]
	assert.Equal(t, "INV-2025-101", inv.Number)
	assert.Equal(t, types.InvoiceDraft, inv.Status)
	assert.True(t, inv.Amount.Equal(qtn.Amount))
	require.Len(t, inv.LineItems, 1)
	assert.NotEqual(t, qtn.LineItems[0].ID, inv.LineItems[0].ID)

	_, err = f.svc.MarkSent(ctx, admin, inv.ID)
	require.NoError(t, err)
	paid, err := f.svc.MarkPaid(ctx, admin, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InvoicePaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, testNow, *paid.PaidAt)

	_, err = f.svc.Void(ctx, admin, inv.ID)
	requireCode(t, err, types.ErrCodeConflictInvalidTransition)
}

func TestCancel_VoidsDraftQuotations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qtn, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-004"})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, admin, "REQ-2025-004")
	require.NoError(t, err)

	got, err := f.store.Invoice(ctx, qtn.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceVoid, got.Status)
}

func TestApprove_VoidsUnsentDraftQuotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qtn, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-001"})
	require.NoError(t, err)

	f.events = nil
	_, err = f.svc.Approve(ctx, admin, "REQ-2025-001")
	require.NoError(t, err)
	assert.Contains(t, f.topics(), types.TopicInvoices)

	got, err := f.store.Invoice(ctx, qtn.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceVoid, got.Status)

	_, err = f.svc.MarkSent(ctx, admin, qtn.ID)
	requireCode(t, err, types.ErrCodeConflictInvalidTransition)

	res, err := f.svc.ListInvoices(ctx, InvoiceFilter{RequestID: "REQ-2025-001", Kind: string(types.KindInvoice)})
	require.NoError(t, err)
	assert.Empty(t, res.Data)
}

func TestMarkSent_RefusesQuotationOfClosedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qtn, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-001"})
	require.NoError(t, err)

	// Close the request behind the service's back, leaving the draft alive.
	require.NoError(t, f.store.Update(ctx, store.Requests, func(tx *store.Tx) error {
		r, err := tx.Request("REQ-2025-001")
		if err != nil {
			return err
		}
		r.Status = types.RequestApproved
		return nil
	}))

	_, err = f.svc.MarkSent(ctx, admin, qtn.ID)
	requireCode(t, err, types.ErrCodeConflictRequestClosed)

	got, err := f.store.Invoice(ctx, qtn.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceDraft, got.Status)
}

func TestApprove_WithoutSentQuotationIssuesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, admin, "REQ-2025-001")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Counts()[store.Invoices])
}

func TestMarkPaid_RequiresSentOrOverdue(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.MarkPaid(context.Background(), admin, "inv_001")
	requireCode(t, err, types.ErrCodeConflictInvalidTransition)

	_, err = f.svc.MarkPaid(context.Background(), admin, "inv_404")
	requireCode(t, err, types.ErrCodeNotFoundInvoice)
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qtn, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-001"})
	require.NoError(t, err)
	_, err = f.svc.MarkSent(ctx, admin, qtn.ID)
	require.NoError(t, err)

	n, err := f.svc.SweepOverdue(ctx, testNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	f.events = nil
	n, err = f.svc.SweepOverdue(ctx, testNow.Add(16*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []types.Topic{types.TopicInvoices, types.TopicAudit}, f.topics())

	got, err := f.store.Invoice(ctx, qtn.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InvoiceOverdue, got.Status)

	paid, err := f.svc.MarkPaid(ctx, admin, qtn.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InvoicePaid, paid.Status)
}

func TestDetailAndTimeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qtn, err := f.svc.CreateDraftQuotation(ctx, admin, QuotationInput{RequestID: "REQ-2025-001"})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.svc.MarkSent(ctx, admin, qtn.ID)
	require.NoError(t, err)

	d, err := f.svc.Detail(ctx, "REQ-2025-001")
	require.NoError(t, err)
	assert.Equal(t, types.RequestSent, d.Request.Status)
	require.Len(t, d.Invoices, 1)
	assert.Len(t, d.Audit, 4)

	require.Len(t, d.Timeline, 4)
	assert.Equal(t, StepCompleted, d.Timeline[0].State)
	assert.Equal(t, StepCompleted, d.Timeline[1].State)
	require.NotNil(t, d.Timeline[1].At)
	assert.Equal(t, testNow, *d.Timeline[1].At)
	assert.Equal(t, StepCurrent, d.Timeline[2].State)
	require.NotNil(t, d.Timeline[2].At)
	assert.Equal(t, testNow.Add(time.Hour), *d.Timeline[2].At)
	assert.Equal(t, "Approved", d.Timeline[3].Label)
	assert.Equal(t, StepPending, d.Timeline[3].State)

	_, err = f.svc.Detail(ctx, "REQ-404")
	requireCode(t, err, types.ErrCodeNotFoundRequest)
}

func TestBuildTimeline_Terminal(t *testing.T) {
	r := types.SubscriptionRequest{Status: types.RequestRejected, CreatedAt: testNow}
	trail := []types.AuditLogEntry{{
		Action:    types.AuditRequestStatusChanged,
		Timestamp: testNow.Add(time.Hour),
		Meta:      map[string]any{"from": "PENDING", "to": "REJECTED"},
	}}

	steps := BuildTimeline(r, trail)
	assert.Equal(t, "Rejected", steps[3].Label)
	assert.Equal(t, StepCompleted, steps[3].State)
	require.NotNil(t, steps[3].At)
	assert.Nil(t, steps[1].At)
}

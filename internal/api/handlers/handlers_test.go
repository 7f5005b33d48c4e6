package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/juju/clock/testclock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subadmin/internal/accounts"
	"subadmin/internal/analytics"
	"subadmin/internal/audit"
	"subadmin/internal/billing"
	"subadmin/internal/core"
	"subadmin/internal/events"
	"subadmin/internal/scheduler"
	"subadmin/internal/types"
	"subadmin/internal/users"
)

// =============================================================================
// Helpers
// =============================================================================

var testActor = types.Actor{ID: "usr_005", Name: "Priya Admin", Role: types.RoleSystemAdmin, Type: types.ActorTypeUser}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(quietLogger())
}

// serve routes req through a chi router with register mounted at /v1 and
// testActor in context.
func serve(t *testing.T, register func(chi.Router), req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), testActor)))
		})
	})
	r.Route("/v1", register)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonReq(method, path, body string) *http.Request {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error.Code
}

// denyGuard blocks every guarded route.
func denyGuard(p types.Permission) func(http.Handler) http.Handler {
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodePermissionDenied, "denied", nil,
				map[string]any{"permission": string(p)}))
		})
	}
}

// =============================================================================
// Mock Implementations
// =============================================================================

type mockUserService struct {
	listFn      func(ctx context.Context, f users.Filter) (types.ListResult[types.User], error)
	getFn       func(ctx context.Context, id string) (types.User, error)
	setStatusFn func(ctx context.Context, actor types.Actor, id string, status types.UserStatus) (types.User, error)
}

func (m *mockUserService) List(ctx context.Context, f users.Filter) (types.ListResult[types.User], error) {
	return m.listFn(ctx, f)
}

func (m *mockUserService) Get(ctx context.Context, id string) (types.User, error) {
	return m.getFn(ctx, id)
}

func (m *mockUserService) SetStatus(ctx context.Context, actor types.Actor, id string, status types.UserStatus) (types.User, error) {
	return m.setStatusFn(ctx, actor, id, status)
}

type mockAccountService struct {
	toggleFn func(ctx context.Context, actor types.Actor, id string) (types.Account, error)
	subsFn   func(ctx context.Context, f accounts.SubscriptionFilter) (types.ListResult[types.Subscription], error)
}

func (m *mockAccountService) List(context.Context, accounts.Filter) (types.ListResult[types.Account], error) {
	return types.ListResult[types.Account]{}, nil
}

func (m *mockAccountService) Get(_ context.Context, id string) (accounts.Detail, error) {
	return accounts.Detail{}, types.NewNotFoundError(types.ErrCodeNotFoundAccount, "account", id)
}

func (m *mockAccountService) ListSubscriptions(ctx context.Context, f accounts.SubscriptionFilter) (types.ListResult[types.Subscription], error) {
	return m.subsFn(ctx, f)
}

func (m *mockAccountService) ToggleSuspend(ctx context.Context, actor types.Actor, id string) (types.Account, error) {
	return m.toggleFn(ctx, actor, id)
}

type mockRequestService struct {
	listFn      func(ctx context.Context, f billing.RequestFilter) (types.ListResult[types.SubscriptionRequest], error)
	detailFn    func(ctx context.Context, id string) (billing.RequestDetail, error)
	updateFn    func(ctx context.Context, actor types.Actor, id string, u billing.RequestUpdate) (types.SubscriptionRequest, error)
	setStatusFn func(ctx context.Context, actor types.Actor, id string, s types.RequestStatus) (types.SubscriptionRequest, error)
	setQuoteFn  func(ctx context.Context, actor types.Actor, id string, amount decimal.Decimal) (types.SubscriptionRequest, error)
	rejectFn    func(ctx context.Context, actor types.Actor, id, reason string) (types.SubscriptionRequest, error)
	quotationFn func(ctx context.Context, actor types.Actor, in billing.QuotationInput) (types.Invoice, error)
}

func (m *mockRequestService) ListRequests(ctx context.Context, f billing.RequestFilter) (types.ListResult[types.SubscriptionRequest], error) {
	return m.listFn(ctx, f)
}

func (m *mockRequestService) Detail(ctx context.Context, id string) (billing.RequestDetail, error) {
	return m.detailFn(ctx, id)
}

func (m *mockRequestService) UpdateRequest(ctx context.Context, actor types.Actor, id string, u billing.RequestUpdate) (types.SubscriptionRequest, error) {
	return m.updateFn(ctx, actor, id, u)
}

func (m *mockRequestService) SetStatus(ctx context.Context, actor types.Actor, id string, s types.RequestStatus) (types.SubscriptionRequest, error) {
	return m.setStatusFn(ctx, actor, id, s)
}

func (m *mockRequestService) SetQuote(ctx context.Context, actor types.Actor, id string, amount decimal.Decimal) (types.SubscriptionRequest, error) {
	return m.setQuoteFn(ctx, actor, id, amount)
}

func (m *mockRequestService) Approve(_ context.Context, _ types.Actor, id string) (types.SubscriptionRequest, error) {
	return types.SubscriptionRequest{ID: id, Status: types.RequestApproved}, nil
}

func (m *mockRequestService) Reject(ctx context.Context, actor types.Actor, id, reason string) (types.SubscriptionRequest, error) {
	return m.rejectFn(ctx, actor, id, reason)
}

func (m *mockRequestService) Cancel(_ context.Context, _ types.Actor, id string) (types.SubscriptionRequest, error) {
	return types.SubscriptionRequest{}, types.NewTransitionError("request", id, "APPROVED", "CANCELLED")
}

func (m *mockRequestService) CreateDraftQuotation(ctx context.Context, actor types.Actor, in billing.QuotationInput) (types.Invoice, error) {
	return m.quotationFn(ctx, actor, in)
}

type mockInvoiceService struct {
	sendFn func(ctx context.Context, actor types.Actor, id string) (types.Invoice, error)
	paidFn func(ctx context.Context, actor types.Actor, id string) (types.Invoice, error)
}

func (m *mockInvoiceService) ListInvoices(_ context.Context, f billing.InvoiceFilter) (types.ListResult[types.Invoice], error) {
	return types.ListResult[types.Invoice]{
		Data:     []types.Invoice{{ID: "inv_1", RequestID: f.RequestID, Kind: types.InvoiceKind(f.Kind)}},
		Total:    1,
		TotalAll: 4,
	}, nil
}

func (m *mockInvoiceService) GetInvoice(_ context.Context, id string) (types.Invoice, error) {
	return types.Invoice{ID: id}, nil
}

func (m *mockInvoiceService) MarkSent(ctx context.Context, actor types.Actor, id string) (types.Invoice, error) {
	return m.sendFn(ctx, actor, id)
}

func (m *mockInvoiceService) MarkPaid(ctx context.Context, actor types.Actor, id string) (types.Invoice, error) {
	return m.paidFn(ctx, actor, id)
}

func (m *mockInvoiceService) Void(_ context.Context, _ types.Actor, id string) (types.Invoice, error) {
	return types.Invoice{ID: id, Status: types.InvoiceVoid}, nil
}

type mockAuditService struct {
	lastFilter audit.Filter
	exportErr  error
}

func (m *mockAuditService) List(_ context.Context, f audit.Filter) (types.ListResult[types.AuditLogEntry], error) {
	m.lastFilter = f
	return types.ListResult[types.AuditLogEntry]{Data: []types.AuditLogEntry{{ID: "aud_1"}}, Total: 1, TotalAll: 9}, nil
}

func (m *mockAuditService) Export(_ context.Context, w io.Writer, f audit.Filter) (int, error) {
	m.lastFilter = f
	if m.exportErr != nil {
		return 0, m.exportErr
	}
	_, err := w.Write([]byte("zstd-bytes"))
	return 3, err
}

type mockSession struct {
	switched string
}

func (m *mockSession) Lookup(_ context.Context, id string) (types.CurrentUserContext, error) {
	return types.CurrentUserContext{User: types.User{ID: id}, Permissions: []types.Permission{types.PermRequestsQuote}}, nil
}

func (m *mockSession) Switch(_ context.Context, id string) (types.CurrentUserContext, error) {
	if id == "usr_999" {
		return types.CurrentUserContext{}, types.NewNotFoundError(types.ErrCodeNotFoundUser, "user", id)
	}
	m.switched = id
	return types.CurrentUserContext{User: types.User{ID: id}}, nil
}

type mockOps struct {
	payload scheduler.MaintenancePayload
}

func (m *mockOps) Derive(context.Context) (analytics.Metrics, error) {
	return analytics.Metrics{Totals: analytics.Totals{Accounts: 3}}, nil
}

func (m *mockOps) Snapshot() map[types.Topic]events.TopicRevision {
	return map[types.Topic]events.TopicRevision{types.TopicRequests: {Revision: 4}}
}

func (m *mockOps) Dispatch(_ context.Context, p scheduler.MaintenancePayload) (scheduler.Result, error) {
	m.payload = p
	return scheduler.Result{Task: p.Task, Changed: 2}, nil
}

// =============================================================================
// Session
// =============================================================================

func TestSessionHandler(t *testing.T) {
	sess := &mockSession{}
	h := NewSessionHandler(sess, testValidator(), quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/session", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"usr_005"`)
	assert.Contains(t, rec.Body.String(), `"requests:quote"`)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/session/switch", `{"user_id":"usr_003"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "usr_003", sess.switched)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/session/switch", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), errorCode(t, rec))

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/session/switch", `{"user_id":"usr_999"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Users
// =============================================================================

func TestUserHandler_ListPassesFilter(t *testing.T) {
	var got users.Filter
	svc := &mockUserService{listFn: func(_ context.Context, f users.Filter) (types.ListResult[types.User], error) {
		got = f
		return types.ListResult[types.User]{Data: []types.User{{ID: "usr_001"}}, Total: 1, TotalAll: 6}, nil
	}}
	h := NewUserHandler(svc, testValidator(), quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/users?q=%20acme%20&role=SUPPORT&status=all", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, users.Filter{Query: "acme", Role: "SUPPORT", Status: "all"}, got)
	assert.Contains(t, rec.Body.String(), `"total_all":6`)
}

func TestUserHandler_SetStatus(t *testing.T) {
	svc := &mockUserService{setStatusFn: func(_ context.Context, actor types.Actor, id string, s types.UserStatus) (types.User, error) {
		assert.Equal(t, testActor.ID, actor.ID)
		return types.User{ID: id, Status: s}, nil
	}}
	h := NewUserHandler(svc, testValidator(), quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodPatch, "/v1/users/usr_002/status", `{"status":"INACTIVE"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"INACTIVE"`)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPatch, "/v1/users/usr_002/status", `{"status":"BANNED"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidValue), errorCode(t, rec))
}

// =============================================================================
// Accounts
// =============================================================================

func TestAccountHandler(t *testing.T) {
	svc := &mockAccountService{
		toggleFn: func(_ context.Context, _ types.Actor, id string) (types.Account, error) {
			return types.Account{ID: id, Status: types.AccountStatusSuspended}, nil
		},
		subsFn: func(_ context.Context, f accounts.SubscriptionFilter) (types.ListResult[types.Subscription], error) {
			assert.Equal(t, "acc_001", f.AccountID)
			return types.ListResult[types.Subscription]{}, nil
		},
	}

	h := NewAccountHandler(svc, nil, quietLogger())
	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/accounts/acc_001/toggle-suspend", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"SUSPENDED"`)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/subscriptions?account_id=acc_001", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"meta":{"total":0,"total_all":0}}`, rec.Body.String())

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/accounts/acc_404", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	denied := NewAccountHandler(svc, denyGuard, quietLogger())
	rec = serve(t, denied.RegisterRoutes, jsonReq(http.MethodPost, "/v1/accounts/acc_001/toggle-suspend", ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// Requests
// =============================================================================

func TestRequestHandler_ListAndDetail(t *testing.T) {
	svc := &mockRequestService{
		listFn: func(_ context.Context, f billing.RequestFilter) (types.ListResult[types.SubscriptionRequest], error) {
			assert.Equal(t, billing.RequestFilter{Query: "req", Type: "UPGRADE", Status: "PENDING"}, f)
			return types.ListResult[types.SubscriptionRequest]{Total: 0, TotalAll: 5}, nil
		},
		detailFn: func(_ context.Context, id string) (billing.RequestDetail, error) {
			return billing.RequestDetail{}, types.NewNotFoundError(types.ErrCodeNotFoundRequest, "request", id)
		},
	}
	h := NewRequestHandler(svc, testValidator(), nil, quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/requests?q=req&type=UPGRADE&status=PENDING", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/requests/req_404", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundRequest), errorCode(t, rec))
}

func TestRequestHandler_Update(t *testing.T) {
	svc := &mockRequestService{updateFn: func(_ context.Context, _ types.Actor, id string, u billing.RequestUpdate) (types.SubscriptionRequest, error) {
		require.NotNil(t, u.MaxUsers)
		assert.Equal(t, 25, *u.MaxUsers)
		assert.Nil(t, u.Billing)
		return types.SubscriptionRequest{ID: id}, nil
	}}
	h := NewRequestHandler(svc, testValidator(), nil, quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodPatch, "/v1/requests/req_001", `{"max_users":25}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPatch, "/v1/requests/req_001", `{"billing":"Weekly"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPatch, "/v1/requests/req_001", `{"plan":"Gold"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidJSON), errorCode(t, rec))
}

func TestRequestHandler_SetQuote(t *testing.T) {
	var got decimal.Decimal
	svc := &mockRequestService{setQuoteFn: func(_ context.Context, _ types.Actor, id string, amount decimal.Decimal) (types.SubscriptionRequest, error) {
		got = amount
		return types.SubscriptionRequest{ID: id, QuoteAmount: amount}, nil
	}}
	h := NewRequestHandler(svc, testValidator(), nil, quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodPut, "/v1/requests/req_001/quote", `{"amount":"11800.50"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, got.Equal(decimal.RequireFromString("11800.50")))

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPut, "/v1/requests/req_001/quote", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), errorCode(t, rec))
}

func TestRequestHandler_Transitions(t *testing.T) {
	var reason string
	svc := &mockRequestService{
		rejectFn: func(_ context.Context, _ types.Actor, id, r string) (types.SubscriptionRequest, error) {
			reason = r
			return types.SubscriptionRequest{ID: id, Status: types.RequestRejected}, nil
		},
		setStatusFn: func(_ context.Context, _ types.Actor, id string, s types.RequestStatus) (types.SubscriptionRequest, error) {
			return types.SubscriptionRequest{ID: id, Status: s}, nil
		},
	}
	h := NewRequestHandler(svc, testValidator(), nil, quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/requests/req_001/approve", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"APPROVED"`)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/requests/req_001/reject", `{"reason":"budget"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "budget", reason)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/requests/req_001/reject", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, reason)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/requests/req_001/cancel", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictInvalidTransition), errorCode(t, rec))

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPut, "/v1/requests/req_001/status", `{"status":"SENT"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestHandler_SetStatusGuardsByTarget(t *testing.T) {
	svc := &mockRequestService{setStatusFn: func(_ context.Context, _ types.Actor, id string, s types.RequestStatus) (types.SubscriptionRequest, error) {
		return types.SubscriptionRequest{ID: id, Status: s}, nil
	}}
	h := NewRequestHandler(svc, testValidator(), denyGuard, quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodPut, "/v1/requests/req_001/status", `{"status":"APPROVED"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.PermRequestsApprove))

	for _, status := range []string{"QUOTED", "SENT"} {
		rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPut, "/v1/requests/req_001/status", `{"status":"`+status+`"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code, status)
		assert.Contains(t, rec.Body.String(), string(types.PermRequestsQuote), status)
	}

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPut, "/v1/requests/req_001/status", `{"status":"CANCELLED"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestHandler_CreateQuotation(t *testing.T) {
	var got billing.QuotationInput
	svc := &mockRequestService{quotationFn: func(_ context.Context, _ types.Actor, in billing.QuotationInput) (types.Invoice, error) {
		got = in
		return types.Invoice{ID: "inv_new", Number: "QTN-2025-004", Kind: types.KindQuotation}, nil
	}}
	h := NewRequestHandler(svc, testValidator(), nil, quietLogger())

	body := `{"request_id":"req_other","currency":"usd","line_items":[{"description":"Analytics module","quantity":2,"unit_amount":"150"}]}`
	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/requests/req_001/quotations", body))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "req_001", got.RequestID)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, 2, got.LineItems[0].Quantity)
	assert.Contains(t, rec.Body.String(), "QTN-2025-004")

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/requests/req_001/quotations",
		`{"line_items":[{"description":"","quantity":0,"unit_amount":"1"}]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Invoices
// =============================================================================

func TestInvoiceHandler(t *testing.T) {
	svc := &mockInvoiceService{
		sendFn: func(_ context.Context, _ types.Actor, id string) (types.Invoice, error) {
			return types.Invoice{ID: id, Status: types.InvoiceSent}, nil
		},
		paidFn: func(_ context.Context, _ types.Actor, id string) (types.Invoice, error) {
			return types.Invoice{}, types.NewTransitionError("invoice", id, "DRAFT", "PAID")
		},
	}
	h := NewInvoiceHandler(svc, nil, quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/invoices?kind=QUOTATION&request_id=req_001", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"request_id":"req_001"`)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/invoices/inv_1/send", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"SENT"`)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/invoices/inv_1/mark-paid", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/invoices/inv_1/void", ""))
	assert.Equal(t, http.StatusOK, rec.Code)

	denied := NewInvoiceHandler(svc, denyGuard, quietLogger())
	rec = serve(t, denied.RegisterRoutes, jsonReq(http.MethodPost, "/v1/invoices/inv_1/send", ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// Audit
// =============================================================================

func TestAuditHandler(t *testing.T) {
	svc := &mockAuditService{}
	fixed := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	h := NewAuditHandler(svc, func() time.Time { return fixed }, quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/audit-logs?entity=INVOICE&limit=5", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.EntityType("INVOICE"), svc.lastFilter.Entity)
	assert.Equal(t, 5, svc.lastFilter.Limit)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/audit-logs?limit=abc", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/audit-logs/export?entity_id=req_001", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zstd", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-20250201-120000.jsonl.zst")
	assert.Equal(t, "3", rec.Header().Get("X-Audit-Entries"))
	assert.Equal(t, "zstd-bytes", rec.Body.String())
	assert.Equal(t, "req_001", svc.lastFilter.EntityID)

	svc.exportErr = types.NewAppError(types.ErrCodeUnavailableTimeout, "slow", nil)
	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/audit-logs/export", ""))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// =============================================================================
// Ops
// =============================================================================

func TestOpsHandler(t *testing.T) {
	ops := &mockOps{}
	h := NewOpsHandler(ops, ops, ops, nil, quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/analytics", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accounts":3`)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodGet, "/v1/changes", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"requests:changed":{"revision":4`)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/maintenance/overdue-sweep", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scheduler.TaskOverdueSweep, ops.payload.Task)
	assert.Nil(t, ops.payload.ReferenceTime)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/maintenance/overdue-sweep",
		`{"reference_time":"2025-03-01T00:00:00Z"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ops.payload.ReferenceTime)
	assert.Equal(t, 2025, ops.payload.ReferenceTime.Year())
	assert.Contains(t, rec.Body.String(), `"changed":2`)
}

type countingMarker struct {
	calls []time.Time
}

func (m *countingMarker) SweepOverdue(_ context.Context, now time.Time) (int, error) {
	m.calls = append(m.calls, now)
	return 1, nil
}

func TestOpsHandler_OverdueSweepRejectsFutureReference(t *testing.T) {
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	marker := &countingMarker{}
	sweeper := scheduler.NewOverdueSweeper(marker, testclock.NewClock(now), time.Minute, quietLogger())
	ops := &mockOps{}
	h := NewOpsHandler(ops, ops, sweeper, nil, quietLogger())

	rec := serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/maintenance/overdue-sweep",
		`{"reference_time":"2030-01-01T00:00:00Z"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidValue), errorCode(t, rec))
	assert.Empty(t, marker.calls)

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/maintenance/overdue-sweep",
		`{"reference_time":"2025-01-31T00:00:00Z"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, marker.calls, 1)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), marker.calls[0])

	rec = serve(t, h.RegisterRoutes, jsonReq(http.MethodPost, "/v1/maintenance/overdue-sweep", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, marker.calls, 2)
	assert.Equal(t, now, marker.calls[1])
}

func TestDecodeOptional_ChunkedEmptyBody(t *testing.T) {
	ops := &mockOps{}
	h := NewOpsHandler(ops, ops, ops, nil, quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/maintenance/overdue-sweep", io.MultiReader())
	req.ContentLength = -1
	rec := serve(t, h.RegisterRoutes, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, scheduler.TaskOverdueSweep, ops.payload.Task)

	req = httptest.NewRequest(http.MethodPost, "/v1/maintenance/overdue-sweep", io.MultiReader(strings.NewReader(`{"task":`)))
	req.ContentLength = -1
	rec = serve(t, h.RegisterRoutes, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

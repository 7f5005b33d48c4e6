package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"subadmin/internal/billing"
	"subadmin/internal/core"
	"subadmin/internal/types"
)

// RequestService is the subscription request contract.
type RequestService interface {
	ListRequests(ctx context.Context, f billing.RequestFilter) (types.ListResult[types.SubscriptionRequest], error)
	Detail(ctx context.Context, id string) (billing.RequestDetail, error)
	UpdateRequest(ctx context.Context, actor types.Actor, id string, u billing.RequestUpdate) (types.SubscriptionRequest, error)
	SetStatus(ctx context.Context, actor types.Actor, id string, status types.RequestStatus) (types.SubscriptionRequest, error)
	SetQuote(ctx context.Context, actor types.Actor, id string, amount decimal.Decimal) (types.SubscriptionRequest, error)
	Approve(ctx context.Context, actor types.Actor, id string) (types.SubscriptionRequest, error)
	Reject(ctx context.Context, actor types.Actor, id, reason string) (types.SubscriptionRequest, error)
	Cancel(ctx context.Context, actor types.Actor, id string) (types.SubscriptionRequest, error)
	CreateDraftQuotation(ctx context.Context, actor types.Actor, in billing.QuotationInput) (types.Invoice, error)
}

// --- Request Models ---

// UpdateRequestBody is the body of PATCH /v1/requests/{id}. Omitted fields
// are left unchanged.
type UpdateRequestBody struct {
	Billing       *types.BillingCycle `json:"billing,omitempty" validate:"omitempty,oneof=Monthly Yearly"`
	MaxUsers      *int                `json:"max_users,omitempty" validate:"omitempty,min=1,max=100000"`
	MaxDataSizeGB *int                `json:"max_data_size_gb,omitempty" validate:"omitempty,min=1,max=1000000"`
	Modules       []string            `json:"modules,omitempty" validate:"omitempty,dive,required,max=100"`
}

type SetRequestStatusBody struct {
	Status types.RequestStatus `json:"status" validate:"required"`
}

type SetQuoteBody struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type RejectBody struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// --- Handler ---

type RequestHandler struct {
	svc       RequestService
	validator *core.Validator
	guard     Guard
	logger    *slog.Logger
}

func NewRequestHandler(svc RequestService, v *core.Validator, guard Guard, l *slog.Logger) *RequestHandler {
	if l == nil {
		l = slog.Default()
	}
	return &RequestHandler{svc: svc, validator: v, guard: guardOrAllow(guard), logger: l}
}

func (h *RequestHandler) RegisterRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Detail)
		r.Patch("/{id}", h.Update)
		r.Put("/{id}/status", h.SetStatus)
		r.With(h.guard(types.PermRequestsQuote)).Put("/{id}/quote", h.SetQuote)
		r.With(h.guard(types.PermRequestsApprove)).Post("/{id}/approve", h.Approve)
		r.With(h.guard(types.PermRequestsReject)).Post("/{id}/reject", h.Reject)
		r.Post("/{id}/cancel", h.Cancel)
		r.With(h.guard(types.PermRequestsQuote)).Post("/{id}/quotations", h.CreateQuotation)
	})
}

// List handles GET /v1/requests?q=&type=&status=.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListRequests(r.Context(), billing.RequestFilter{
		Query:  query(r, "q"),
		Type:   query(r, "type"),
		Status: query(r, "status"),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.List(w, r, res)
}

// Detail handles GET /v1/requests/{id}: the request, its documents, its
// audit trail and the progress timeline.
func (h *RequestHandler) Detail(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Detail(r.Context(), pathID(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, d)
}

func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body UpdateRequestBody
	if err := decodeAndValidate(w, r, h.validator, &body); err != nil {
		core.Error(w, r, err)
		return
	}
	h.respond(w, r)(h.svc.UpdateRequest(r.Context(), types.ActorFromContext(r.Context()), pathID(r), billing.RequestUpdate{
		Billing:       body.Billing,
		MaxUsers:      body.MaxUsers,
		MaxDataSizeGB: body.MaxDataSizeGB,
		Modules:       body.Modules,
	}))
}

// SetStatus handles PUT /v1/requests/{id}/status. Each target needs the same
// permission as its dedicated endpoint; QUOTED and SENT count as quoting.
func (h *RequestHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var body SetRequestStatusBody
	if err := decodeAndValidate(w, r, h.validator, &body); err != nil {
		core.Error(w, r, err)
		return
	}

	apply := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.respond(w, r)(h.svc.SetStatus(r.Context(), types.ActorFromContext(r.Context()), pathID(r), body.Status))
	})
	switch body.Status {
	case types.RequestApproved:
		h.guard(types.PermRequestsApprove)(apply).ServeHTTP(w, r)
	case types.RequestRejected:
		h.guard(types.PermRequestsReject)(apply).ServeHTTP(w, r)
	case types.RequestQuoted, types.RequestSent:
		h.guard(types.PermRequestsQuote)(apply).ServeHTTP(w, r)
	default:
		apply(w, r)
	}
}

func (h *RequestHandler) SetQuote(w http.ResponseWriter, r *http.Request) {
	var body SetQuoteBody
	if err := decodeAndValidate(w, r, h.validator, &body); err != nil {
		core.Error(w, r, err)
		return
	}
	h.respond(w, r)(h.svc.SetQuote(r.Context(), types.ActorFromContext(r.Context()), pathID(r), *body.Amount))
}

func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.svc.Approve(r.Context(), types.ActorFromContext(r.Context()), pathID(r)))
}

// Reject handles POST /v1/requests/{id}/reject with an optional reason.
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body RejectBody
	if err := decodeOptional(w, r, &body); err != nil {
		core.Error(w, r, err)
		return
	}
	if h.validator != nil {
		if err := h.validator.ValidateStruct(body); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	h.respond(w, r)(h.svc.Reject(r.Context(), types.ActorFromContext(r.Context()), pathID(r), body.Reason))
}

func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.svc.Cancel(r.Context(), types.ActorFromContext(r.Context()), pathID(r)))
}

// CreateQuotation handles POST /v1/requests/{id}/quotations. The path id
// overrides any request_id in the body.
func (h *RequestHandler) CreateQuotation(w http.ResponseWriter, r *http.Request) {
	var in billing.QuotationInput
	if err := core.DecodeJSON(w, r, &in); err != nil {
		core.Error(w, r, err)
		return
	}
	in.RequestID = pathID(r)
	if h.validator != nil {
		if err := h.validator.ValidateStruct(in); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	inv, err := h.svc.CreateDraftQuotation(r.Context(), types.ActorFromContext(r.Context()), in)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "draft quotation created",
		"request_id", in.RequestID, "invoice_id", inv.ID, "number", inv.Number)
	core.Data(w, r, http.StatusCreated, inv)
}

// respond writes the updated request or the error.
func (h *RequestHandler) respond(w http.ResponseWriter, r *http.Request) func(types.SubscriptionRequest, error) {
	return func(req types.SubscriptionRequest, err error) {
		if err != nil {
			core.Error(w, r, err)
			return
		}
		core.Data(w, r, http.StatusOK, req)
	}
}

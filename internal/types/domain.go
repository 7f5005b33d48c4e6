package types

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money is rendered as JSON numbers, matching what the console expects.
	decimal.MarshalJSONWithoutQuotes = true
}

// User is a console or customer user.
type User struct {
	ID            string     `json:"id" yaml:"id"`
	Name          string     `json:"name" yaml:"name"`
	Email         string     `json:"email" yaml:"email"`
	Role          UserRole   `json:"role" yaml:"role"`
	Status        UserStatus `json:"status" yaml:"status"`
	Company       string     `json:"company,omitempty" yaml:"company"`
	AccountsCount int        `json:"accounts_count" yaml:"accounts_count"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty" yaml:"last_login"`
}

// Account is a customer tenancy with plan limits.
type Account struct {
	ID                 string        `json:"id" yaml:"id"`
	Name               string        `json:"name" yaml:"name"`
	OwnerUserID        string        `json:"owner_user_id" yaml:"owner_user_id"`
	OwnerName          string        `json:"owner_name" yaml:"owner_name"`
	OwnerEmail         string        `json:"owner_email" yaml:"owner_email"`
	PlanType           PlanType      `json:"plan_type" yaml:"plan_type"`
	BillingCycle       BillingCycle  `json:"billing_cycle" yaml:"billing_cycle"`
	Status             AccountStatus `json:"status" yaml:"status"`
	SubscriptionStatus string        `json:"subscription_status" yaml:"subscription_status"`
	MaxUsers           int           `json:"max_users" yaml:"max_users"`
	MaxDataSizeGB      int           `json:"max_data_size_gb" yaml:"max_data_size_gb"`
	CreatedAt          time.Time     `json:"created_at" yaml:"created_at"`
}

// Subscription is a plan attached to an account.
type Subscription struct {
	ID           string             `json:"id" yaml:"id"`
	AccountID    string             `json:"account_id" yaml:"account_id"`
	CustomerName string             `json:"customer_name" yaml:"customer_name"`
	Plan         string             `json:"plan" yaml:"plan"`
	Status       SubscriptionStatus `json:"status" yaml:"status"`
	Price        decimal.Decimal    `json:"price" yaml:"price"`
	Currency     string             `json:"currency" yaml:"currency"`
	Interval     string             `json:"interval" yaml:"interval"`
	Amount       string             `json:"amount" yaml:"-"`
	StartDate    time.Time          `json:"start_date" yaml:"start_date"`
	NextBilling  time.Time          `json:"next_billing" yaml:"next_billing"`
	Features     []string           `json:"features" yaml:"features"`
}

// Requester is the denormalized contact on a subscription request.
type Requester struct {
	Name    string `json:"name" yaml:"name"`
	Email   string `json:"email" yaml:"email"`
	Company string `json:"company,omitempty" yaml:"company"`
}

// SubscriptionRequest is a customer's ask to create or change a subscription.
type SubscriptionRequest struct {
	ID                     string          `json:"id" yaml:"id"`
	UserID                 string          `json:"user_id,omitempty" yaml:"user_id"`
	User                   Requester       `json:"user" yaml:"user"`
	Type                   RequestType     `json:"type" yaml:"type"`
	QuoteAmount            decimal.Decimal `json:"quote_amount" yaml:"quote_amount"`
	Status                 RequestStatus   `json:"status" yaml:"status"`
	CreatedAt              time.Time       `json:"created_at" yaml:"created_at"`
	RequestedBilling       BillingCycle    `json:"requested_billing,omitempty" yaml:"requested_billing"`
	RequestedMaxUsers      int             `json:"requested_max_users,omitempty" yaml:"requested_max_users"`
	RequestedMaxDataSizeGB int             `json:"requested_max_data_size_gb,omitempty" yaml:"requested_max_data_size_gb"`
	RequestedModules       []string        `json:"requested_modules,omitempty" yaml:"requested_modules"`
	RejectReason           string          `json:"reject_reason,omitempty" yaml:"reject_reason"`
}

// InvoiceLineItem is one billable row of an invoice or quotation.
type InvoiceLineItem struct {
	ID          string          `json:"id" yaml:"id"`
	Description string          `json:"description" yaml:"description"`
	Quantity    int             `json:"quantity" yaml:"quantity"`
	UnitAmount  decimal.Decimal `json:"unit_amount" yaml:"unit_amount"`
	Module      string          `json:"module,omitempty" yaml:"module"`
}

// Total is quantity times unit amount.
func (li InvoiceLineItem) Total() decimal.Decimal {
	return li.UnitAmount.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Invoice is either a quotation sent for approval or a billable invoice.
type Invoice struct {
	ID             string            `json:"id" yaml:"id"`
	Number         string            `json:"number" yaml:"number"`
	AccountID      string            `json:"account_id" yaml:"account_id"`
	SubscriptionID string            `json:"subscription_id,omitempty" yaml:"subscription_id"`
	RequestID      string            `json:"request_id,omitempty" yaml:"request_id"`
	UserID         string            `json:"user_id,omitempty" yaml:"user_id"`
	Subtotal       decimal.Decimal   `json:"subtotal" yaml:"subtotal"`
	TaxRate        decimal.Decimal   `json:"tax_rate" yaml:"tax_rate"`
	TaxAmount      decimal.Decimal   `json:"tax_amount" yaml:"tax_amount"`
	Amount         decimal.Decimal   `json:"amount" yaml:"amount"`
	Currency       string            `json:"currency" yaml:"currency"`
	Status         InvoiceStatus     `json:"status" yaml:"status"`
	IssuedAt       time.Time         `json:"issued_at" yaml:"issued_at"`
	DueAt          *time.Time        `json:"due_at,omitempty" yaml:"due_at"`
	PaidAt         *time.Time        `json:"paid_at,omitempty" yaml:"paid_at"`
	LineItems      []InvoiceLineItem `json:"line_items" yaml:"line_items"`
	Kind           InvoiceKind       `json:"kind" yaml:"kind"`
}

// IsOverdueAt reports whether a sent invoice has passed its due date.
func (inv Invoice) IsOverdueAt(now time.Time) bool {
	return inv.Status == InvoiceSent && inv.DueAt != nil && inv.DueAt.Before(now)
}

// AuditLogEntry records one lifecycle action.
type AuditLogEntry struct {
	ID        string         `json:"id" yaml:"id"`
	Entity    EntityType     `json:"entity" yaml:"entity"`
	EntityID  string         `json:"entity_id" yaml:"entity_id"`
	Action    string         `json:"action" yaml:"action"`
	UserID    string         `json:"user_id,omitempty" yaml:"user_id"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Meta      map[string]any `json:"meta,omitempty" yaml:"meta"`
}

// Audit actions. Services use these constants so the request timeline can
// be reconstructed from the log.
const (
	AuditRequestStatusChanged  = "REQUEST_STATUS_CHANGED"
	AuditRequestQuoteUpdated   = "REQUEST_QUOTE_UPDATED"
	AuditRequestUpdated        = "REQUEST_UPDATED"
	AuditQuotationDraftCreated = "QUOTATION_DRAFT_CREATED"
	AuditQuotationSent         = "QUOTATION_SENT"
	AuditInvoiceDraftCreated   = "INVOICE_DRAFT_CREATED"
	AuditInvoiceSent           = "INVOICE_SENT"
	AuditInvoicePaid           = "INVOICE_PAID"
	AuditInvoiceVoided         = "INVOICE_VOIDED"
	AuditInvoiceMarkedOverdue  = "INVOICE_MARKED_OVERDUE"
	AuditAccountSuspended      = "ACCOUNT_SUSPENDED"
	AuditAccountReactivated    = "ACCOUNT_REACTIVATED"
	AuditUserStatusChanged     = "USER_STATUS_CHANGED"
	AuditAuthUserSwitched      = "AUTH_USER_SWITCHED"
)

// CurrentUserContext is the acting console user and its permissions.
type CurrentUserContext struct {
	User        User         `json:"user"`
	Permissions []Permission `json:"permissions"`
}

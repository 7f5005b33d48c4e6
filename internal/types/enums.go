package types

import "strings"

// UserRole defines the console authorization level of a user.
type UserRole string

const (
	RoleSystemAdmin UserRole = "SYSTEM_ADMIN"
	RoleSupport     UserRole = "SUPPORT"
	RoleClientAdmin UserRole = "CLIENT_ADMIN"
	RoleClientUser  UserRole = "CLIENT_USER"
)

// UserStatus represents the lifecycle state of a user.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// AccountStatus is the normalized account state.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusTrial     AccountStatus = "TRIAL"
	AccountStatusPastDue   AccountStatus = "PAST_DUE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusCancelled AccountStatus = "CANCELLED"
	AccountStatusPending   AccountStatus = "PENDING"
	AccountStatusExpired   AccountStatus = "EXPIRED"
)

// Label returns the display label used by the legacy subscription_status field.
func (s AccountStatus) Label() string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// PlanType distinguishes trial from paid accounts.
type PlanType string

const (
	PlanTrial PlanType = "trial"
	PlanPaid  PlanType = "paid"
)

// BillingCycle is the invoicing period of an account or request.
type BillingCycle string

const (
	BillingMonthly BillingCycle = "Monthly"
	BillingYearly  BillingCycle = "Yearly"
)

// SubscriptionStatus is the state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
)

// RequestType is the kind of change a subscription request asks for.
type RequestType string

const (
	RequestNewAccount RequestType = "NEW_ACCOUNT"
	RequestUpgrade    RequestType = "UPGRADE"
	RequestDowngrade  RequestType = "DOWNGRADE"
	RequestCancel     RequestType = "CANCEL"
	RequestRenewal    RequestType = "RENEWAL"
)

// RequestStatus is the lifecycle state of a subscription request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestQuoted    RequestStatus = "QUOTED"
	RequestSent      RequestStatus = "SENT"
	RequestApproved  RequestStatus = "APPROVED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCancelled RequestStatus = "CANCELLED"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending: {RequestQuoted, RequestApproved, RequestRejected, RequestCancelled},
	RequestQuoted:  {RequestQuoted, RequestSent, RequestApproved, RequestRejected, RequestCancelled},
	RequestSent:    {RequestApproved, RequestRejected, RequestCancelled},
}

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestQuoted, RequestSent, RequestApproved, RequestRejected, RequestCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected || s == RequestCancelled
}

// CanTransitionTo reports whether the request lifecycle permits s -> next.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Quotable reports whether a quotation or quote amount may be set.
func (s RequestStatus) Quotable() bool {
	return s == RequestPending || s == RequestQuoted
}

// InvoiceStatus is the lifecycle state of an invoice or quotation.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "DRAFT"
	InvoiceSent    InvoiceStatus = "SENT"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceVoid    InvoiceStatus = "VOID"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceDraft:   {InvoiceSent, InvoiceVoid},
	InvoiceSent:    {InvoicePaid, InvoiceOverdue},
	InvoiceOverdue: {InvoicePaid},
}

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceVoid, InvoiceOverdue:
		return true
	}
	return false
}

// CanTransitionTo reports whether the invoice lifecycle permits s -> next.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvoiceKind separates quotations from billable invoices.
type InvoiceKind string

const (
	KindQuotation InvoiceKind = "QUOTATION"
	KindInvoice   InvoiceKind = "INVOICE"
)

// EntityType names the kind of record an audit entry refers to.
type EntityType string

const (
	EntityRequest EntityType = "REQUEST"
	EntityAccount EntityType = "ACCOUNT"
	EntityInvoice EntityType = "INVOICE"
	EntityUser    EntityType = "USER"
)

// Permission is a capability string granted to a role.
type Permission string

const (
	PermRequestsApprove Permission = "requests:approve"
	PermRequestsReject  Permission = "requests:reject"
	PermRequestsQuote   Permission = "requests:quote"
	PermInvoicesSend    Permission = "invoices:send"
	PermInvoicesPaid    Permission = "invoices:markPaid"
	PermAccountsSuspend Permission = "accounts:suspend"
)

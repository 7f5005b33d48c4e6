package billing

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"subadmin/internal/types"
)

// StepState is the progress of one timeline step.
type StepState string

const (
	StepCompleted StepState = "completed"
	StepCurrent   StepState = "current"
	StepPending   StepState = "pending"
)

// TimelineStep is one stage of a request's progress.
type TimelineStep struct {
	Label string     `json:"label"`
	State StepState  `json:"state"`
	At    *time.Time `json:"at,omitempty"`
}

// RequestDetail is a request with everything the detail view shows.
type RequestDetail struct {
	Request  types.SubscriptionRequest `json:"request"`
	Invoices []types.Invoice           `json:"invoices"`
	Audit    []types.AuditLogEntry     `json:"audit"`
	Timeline []TimelineStep            `json:"timeline"`
}

// Detail loads a request, its documents and its audit trail concurrently.
func (s *Service) Detail(ctx context.Context, id string) (RequestDetail, error) {
	var (
		req     types.SubscriptionRequest
		related []types.Invoice
		log     []types.AuditLogEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		req, err = s.store.Request(gctx, id)
		return err
	})
	g.Go(func() error {
		all, err := s.store.Invoices(gctx)
		if err != nil {
			return err
		}
		for _, inv := range all {
			if inv.RequestID == id {
				related = append(related, inv)
			}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		log, err = s.store.AuditLog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return RequestDetail{}, err
	}

	invoiceIDs := make(map[string]bool, len(related))
	for _, inv := range related {
		invoiceIDs[inv.ID] = true
	}
	trail := make([]types.AuditLogEntry, 0)
	for _, e := range log {
		switch {
		case e.Entity == types.EntityRequest && e.EntityID == id:
		case e.Entity == types.EntityInvoice && invoiceIDs[e.EntityID]:
		default:
			continue
		}
		trail = append(trail, e)
	}
	// Oldest first; the stable sort keeps insert order for equal timestamps.
	sort.SliceStable(trail, func(i, j int) bool { return trail[i].Timestamp.Before(trail[j].Timestamp) })

	if related == nil {
		related = []types.Invoice{}
	}
	return RequestDetail{
		Request:  req,
		Invoices: related,
		Audit:    trail,
		Timeline: BuildTimeline(req, trail),
	}, nil
}

// BuildTimeline derives the Created, Quoted, Sent and final steps of a
// request from its status and audit trail (oldest first). The final step is
// labelled after the terminal status, or "Approved" while still open.
func BuildTimeline(r types.SubscriptionRequest, trail []types.AuditLogEntry) []TimelineStep {
	created := r.CreatedAt
	steps := []TimelineStep{
		{Label: "Created", At: &created},
		{Label: "Quoted"},
		{Label: "Sent"},
		{Label: finalLabel(r.Status)},
	}

	for _, e := range trail {
		at := e.Timestamp
		switch e.Action {
		case types.AuditQuotationDraftCreated:
			if steps[1].At == nil {
				steps[1].At = &at
			}
		case types.AuditQuotationSent:
			if steps[2].At == nil {
				steps[2].At = &at
			}
		case types.AuditRequestStatusChanged:
			if to, _ := e.Meta["to"].(string); types.RequestStatus(to).IsTerminal() {
				steps[3].At = &at
			}
		}
	}

	reached := 0
	switch r.Status {
	case types.RequestQuoted:
		reached = 1
	case types.RequestSent:
		reached = 2
	case types.RequestApproved, types.RequestRejected, types.RequestCancelled:
		reached = 3
	}
	for i := range steps {
		switch {
		case i < reached:
			steps[i].State = StepCompleted
		case i == reached:
			steps[i].State = StepCurrent
		default:
			steps[i].State = StepPending
		}
	}
	if r.Status.IsTerminal() {
		steps[3].State = StepCompleted
	}
	return steps
}

func finalLabel(s types.RequestStatus) string {
	switch s {
	case types.RequestRejected:
		return "Rejected"
	case types.RequestCancelled:
		return "Cancelled"
	default:
		return "Approved"
	}
}

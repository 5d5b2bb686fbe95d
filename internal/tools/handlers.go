package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// KnowledgeResult is one retrieval hit surfaced to the model by
// search_knowledge_base.
type KnowledgeResult struct {
	Content  string  `json:"content"`
	Source   string  `json:"source"`
	Score    float64 `json:"score"`
	Metadata struct {
		Title      string `json:"title"`
		Vendor     string `json:"vendor"`
		DocType    string `json:"doc_type"`
		ChunkIndex int    `json:"chunk_index"`
	} `json:"metadata"`
}

// KnowledgeSearcher is the C10 retrieval pipeline's contract as seen by C4.
// Defined here (rather than imported) so the dispatcher has no compile-time
// dependency on the retrieval package's internals.
//
// vendor narrows results to a single upstream documentation vendor (e.g.
// "openai") when non-empty. Per S6, the pipeline only honors the filter
// when at least one of its final results matches the vendor; otherwise it
// drops the filter and returns the unfiltered results unchanged instead of
// an empty answer.
type KnowledgeSearcher interface {
	Search(ctx context.Context, namespace, query, category, vendor string, topK int) ([]KnowledgeResult, error)
}

// Escalator is the C9 escalation coordinator's contract as seen by C4.
type Escalator interface {
	Escalate(ctx context.Context, callID, reason, priority string) (escalationID string, err error)
}

// Deps bundles the collaborators needed to register the seven built-in
// tools named in §4.4's contract table.
type Deps struct {
	Customers    CustomerDirectory
	Appointments AppointmentScheduler
	Orders       OrderTracker
	Tickets      TicketDesk
	Hours        BusinessHoursProvider
	Knowledge    KnowledgeSearcher
	Escalation   Escalator
}

// RegisterBuiltins wires the seven named tools into d using deps. A nil
// collaborator makes its tool respond with a ToolExecutionError-shaped
// result rather than panicking, so a partially configured deployment still
// answers the model predictably.
func RegisterBuiltins(d *Dispatcher, deps Deps) {
	d.Register("lookup_customer", lookupCustomer(deps.Customers))
	d.Register("schedule_appointment", scheduleAppointment(deps.Appointments))
	d.Register("escalate_to_human", escalateToHuman(deps.Escalation))
	d.Register("search_knowledge_base", searchKnowledgeBase(deps.Knowledge))
	d.Register("check_order_status", checkOrderStatus(deps.Orders))
	d.Register("create_support_ticket", createSupportTicket(deps.Tickets))
	d.Register("get_business_hours", getBusinessHours(deps.Hours))
}

func lookupCustomer(dir CustomerDirectory) Handler {
	return func(ctx context.Context, _ CallContext, raw json.RawMessage) (any, error) {
		if dir == nil {
			return nil, fmt.Errorf("customer directory not configured")
		}
		var in struct {
			PhoneNumber string `json:"phone_number"`
			Email       string `json:"email"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if in.PhoneNumber == "" && in.Email == "" {
			return nil, fmt.Errorf("phone_number or email is required")
		}
		if in.PhoneNumber != "" {
			profile, found, err := dir.LookupByPhone(ctx, in.PhoneNumber)
			if err != nil {
				return nil, err
			}
			return lookupResult(profile, found), nil
		}
		profile, found, err := dir.LookupByEmail(ctx, in.Email)
		if err != nil {
			return nil, err
		}
		return lookupResult(profile, found), nil
	}
}

func lookupResult(profile CustomerProfile, found bool) map[string]any {
	return map[string]any{"found": found, "profile": profile}
}

func scheduleAppointment(sched AppointmentScheduler) Handler {
	return func(ctx context.Context, _ CallContext, raw json.RawMessage) (any, error) {
		if sched == nil {
			return nil, fmt.Errorf("appointment scheduler not configured")
		}
		var in struct {
			Date        string `json:"date"`
			Time        string `json:"time"`
			ServiceType string `json:"service_type"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if in.Date == "" || in.Time == "" || in.ServiceType == "" {
			return nil, fmt.Errorf("date, time, and service_type are all required")
		}
		id, err := sched.Schedule(ctx, in.Date, in.Time, in.ServiceType)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "appointment_id": id}, nil
	}
}

var validEscalationReasons = map[string]bool{
	"complex_issue":     true,
	"customer_request":  true,
	"technical_problem": true,
}

func escalateToHuman(esc Escalator) Handler {
	return func(ctx context.Context, call CallContext, raw json.RawMessage) (any, error) {
		if esc == nil {
			return nil, fmt.Errorf("escalation coordinator not configured")
		}
		var in struct {
			Reason   string `json:"reason"`
			Priority string `json:"priority"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if !validEscalationReasons[in.Reason] {
			return nil, fmt.Errorf("reason must be one of complex_issue, customer_request, technical_problem")
		}
		id, err := esc.Escalate(ctx, call.CallID, in.Reason, in.Priority)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": true, "escalation_id": id}, nil
	}
}

func searchKnowledgeBase(searcher KnowledgeSearcher) Handler {
	return func(ctx context.Context, call CallContext, raw json.RawMessage) (any, error) {
		if searcher == nil {
			return nil, fmt.Errorf("knowledge search not configured")
		}
		var in struct {
			Query    string `json:"query"`
			Category string `json:"category"`
			Vendor   string `json:"vendor"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if in.Query == "" {
			return nil, fmt.Errorf("query is required")
		}
		results, err := searcher.Search(ctx, call.BusinessID, in.Query, in.Category, in.Vendor, 5)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil
	}
}

func checkOrderStatus(tracker OrderTracker) Handler {
	return func(ctx context.Context, _ CallContext, raw json.RawMessage) (any, error) {
		if tracker == nil {
			return nil, fmt.Errorf("order tracker not configured")
		}
		var in struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if in.OrderID == "" {
			return nil, fmt.Errorf("order_id is required")
		}
		status, err := tracker.Status(ctx, in.OrderID)
		if err != nil {
			return nil, err
		}
		return status, nil
	}
}

func createSupportTicket(desk TicketDesk) Handler {
	return func(ctx context.Context, _ CallContext, raw json.RawMessage) (any, error) {
		if desk == nil {
			return nil, fmt.Errorf("ticket desk not configured")
		}
		var in struct {
			Subject     string `json:"subject"`
			Description string `json:"description"`
			Priority    string `json:"priority"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if in.Subject == "" || in.Description == "" {
			return nil, fmt.Errorf("subject and description are required")
		}
		id, err := desk.CreateTicket(ctx, in.Subject, in.Description, in.Priority)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ticket_id": id}, nil
	}
}

func getBusinessHours(provider BusinessHoursProvider) Handler {
	return func(ctx context.Context, _ CallContext, _ json.RawMessage) (any, error) {
		if provider == nil {
			return nil, fmt.Errorf("business hours not configured")
		}
		hours, err := provider.Hours(ctx)
		if err != nil {
			return nil, err
		}
		return hours, nil
	}
}

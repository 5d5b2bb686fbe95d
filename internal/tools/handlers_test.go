package tools

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeCustomers struct {
	profile CustomerProfile
	found   bool
}

func (f fakeCustomers) LookupByPhone(ctx context.Context, phone string) (CustomerProfile, bool, error) {
	return f.profile, f.found, nil
}
func (f fakeCustomers) LookupByEmail(ctx context.Context, email string) (CustomerProfile, bool, error) {
	return f.profile, f.found, nil
}

func TestLookupCustomerRequiresPhoneOrEmail(t *testing.T) {
	d := NewDispatcher()
	RegisterBuiltins(d, Deps{Customers: fakeCustomers{found: true}})

	out := d.Dispatch(context.Background(), CallContext{CallID: "c1"}, "lookup_customer", "{}")
	var parsed map[string]string
	_ = json.Unmarshal([]byte(out), &parsed)
	if parsed["error"] == "" {
		t.Fatalf("expected error when neither phone_number nor email supplied, got %q", out)
	}
}

func TestLookupCustomerFound(t *testing.T) {
	d := NewDispatcher()
	RegisterBuiltins(d, Deps{Customers: fakeCustomers{
		profile: CustomerProfile{ID: "cust-1", Name: "Ada"},
		found:   true,
	}})

	out := d.Dispatch(context.Background(), CallContext{CallID: "c1"}, "lookup_customer", `{"phone_number":"+15551234567"}`)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if parsed["found"] != true {
		t.Fatalf("expected found=true, got %v", parsed)
	}
}

func TestScheduleAppointmentMissingFields(t *testing.T) {
	d := NewDispatcher()
	RegisterBuiltins(d, Deps{})
	out := d.Dispatch(context.Background(), CallContext{}, "schedule_appointment", `{"date":"2026-08-01"}`)
	var parsed map[string]string
	_ = json.Unmarshal([]byte(out), &parsed)
	if parsed["error"] == "" {
		t.Fatalf("expected error for missing required fields")
	}
}

func TestEscalateToHumanRejectsUnknownReason(t *testing.T) {
	d := NewDispatcher()
	RegisterBuiltins(d, Deps{Escalation: fakeEscalator{}})
	out := d.Dispatch(context.Background(), CallContext{CallID: "c1"}, "escalate_to_human", `{"reason":"bored"}`)
	var parsed map[string]string
	_ = json.Unmarshal([]byte(out), &parsed)
	if parsed["error"] == "" {
		t.Fatalf("expected error for unrecognised escalation reason")
	}
}

type fakeEscalator struct{}

func (fakeEscalator) Escalate(ctx context.Context, callID, reason, priority string) (string, error) {
	return "esc-1", nil
}

func TestGetBusinessHoursNotConfigured(t *testing.T) {
	d := NewDispatcher()
	RegisterBuiltins(d, Deps{})
	out := d.Dispatch(context.Background(), CallContext{}, "get_business_hours", "{}")
	var parsed map[string]string
	_ = json.Unmarshal([]byte(out), &parsed)
	if parsed["error"] == "" {
		t.Fatalf("expected error when business hours provider is not configured")
	}
}

package tools

import "context"

// The interfaces below are the seams to the external systems named in §1 as
// out of core scope (CRM records, order/ticket backends, scheduling). The
// core only depends on these narrow contracts; concrete implementations
// live outside this package.

// CustomerProfile is the snapshot returned by a successful customer lookup.
type CustomerProfile struct {
	ID          string
	Name        string
	PhoneNumber string
	Email       string
	Meta        map[string]any
}

// CustomerDirectory resolves a caller to a known customer record.
type CustomerDirectory interface {
	LookupByPhone(ctx context.Context, phoneNumber string) (CustomerProfile, bool, error)
	LookupByEmail(ctx context.Context, email string) (CustomerProfile, bool, error)
}

// AppointmentScheduler books a service appointment and returns its id.
type AppointmentScheduler interface {
	Schedule(ctx context.Context, date, time, serviceType string) (appointmentID string, err error)
}

// OrderStatus is the result of an order lookup.
type OrderStatus struct {
	OrderID  string
	Status   string
	Tracking string
}

// OrderTracker resolves order status and tracking information.
type OrderTracker interface {
	Status(ctx context.Context, orderID string) (OrderStatus, error)
}

// TicketDesk opens a support ticket and returns its id.
type TicketDesk interface {
	CreateTicket(ctx context.Context, subject, description, priority string) (ticketID string, err error)
}

// BusinessHoursProvider returns a day-of-week to hours-string map.
type BusinessHoursProvider interface {
	Hours(ctx context.Context) (map[string]string, error)
}

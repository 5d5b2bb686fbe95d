package tools

import "github.com/ivoxa/callbridge/pkg/realtimeapi"

// BuiltinToolDefinitions describes, in the model's function-calling JSON
// schema shape, the seven tools [RegisterBuiltins] wires into a Dispatcher.
// The call manager passes this slice to [realtimeapi.SessionConfig.Tools]
// when starting a bridge's model session.
func BuiltinToolDefinitions() []realtimeapi.ToolDefinition {
	return []realtimeapi.ToolDefinition{
		{
			Name:        "lookup_customer",
			Description: "Look up a caller's customer profile by phone number or email.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"phone_number": map[string]any{"type": "string"},
					"email":        map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        "schedule_appointment",
			Description: "Schedule an appointment for the caller.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date":         map[string]any{"type": "string", "description": "ISO 8601 date, e.g. 2026-08-14"},
					"time":         map[string]any{"type": "string", "description": "24-hour time, e.g. 14:30"},
					"service_type": map[string]any{"type": "string"},
				},
				"required": []string{"date", "time", "service_type"},
			},
		},
		{
			Name:        "escalate_to_human",
			Description: "Transfer the call to a human agent.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason":   map[string]any{"type": "string", "enum": []string{"complex_issue", "customer_request", "technical_problem"}},
					"priority": map[string]any{"type": "string", "enum": []string{"low", "normal", "high", "urgent"}},
				},
				"required": []string{"reason"},
			},
		},
		{
			Name:        "search_knowledge_base",
			Description: "Search the business knowledge base for an answer to the caller's question.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":    map[string]any{"type": "string"},
					"category": map[string]any{"type": "string"},
					"vendor":   map[string]any{"type": "string", "description": "Restrict results to documentation from this vendor, when known (e.g. \"openai\")."},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "check_order_status",
			Description: "Check the fulfillment status of an existing order.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"order_id": map[string]any{"type": "string"},
				},
				"required": []string{"order_id"},
			},
		},
		{
			Name:        "create_support_ticket",
			Description: "File a support ticket on the caller's behalf.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"subject":     map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"priority":    map[string]any{"type": "string", "enum": []string{"low", "normal", "high", "urgent"}},
				},
				"required": []string{"subject", "description"},
			},
		},
		{
			Name:        "get_business_hours",
			Description: "Return the business's current operating hours.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

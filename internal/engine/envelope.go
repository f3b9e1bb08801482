package engine

// Control envelope shapes.
//
// Inbound request from the agent CLI:
//
//	{"type": "control_request", "request_id": "...",
//	 "request": {"subtype": "can_use_tool", ...}}
//
// Outbound response (success / error):
//
//	{"type": "control_response",
//	 "response": {"subtype": "success", "request_id": "...", "response": {...}}}
//	{"type": "control_response",
//	 "response": {"subtype": "error", "request_id": "...", "error": "..."}}
//
// The same two shapes are used in the opposite direction for requests the
// engine itself sends (initialize, interrupt, set_model, ...).

// ControlRequest is the request envelope, both directions.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type ControlRequest struct {
	Type      string         `json:"type"` // always "control_request"
	RequestID string         `json:"request_id"`
	Request   map[string]any `json:"request"`
}

// Subtype returns the nested subtype discriminator.
func (r *ControlRequest) Subtype() string {
	s, _ := r.Request["subtype"].(string)

	return s
}

// ControlResponse is the response envelope, both directions.
type ControlResponse struct {
	Type     string         `json:"type"` // always "control_response"
	Response map[string]any `json:"response"`
}

// RequestID returns the correlation ID the response answers.
func (r *ControlResponse) RequestID() string {
	id, _ := r.Response["request_id"].(string)

	return id
}

// IsError reports whether the response carries an error subtype.
func (r *ControlResponse) IsError() bool {
	s, _ := r.Response["subtype"].(string)

	return s == "error"
}

// ErrorMessage returns the error text of an error response.
func (r *ControlResponse) ErrorMessage() string {
	msg, _ := r.Response["error"].(string)

	return msg
}

// Payload returns the body of a success response.
func (r *ControlResponse) Payload() map[string]any {
	p, _ := r.Response["response"].(map[string]any)

	return p
}

func successResponse(requestID string, payload map[string]any) *ControlResponse {
	return &ControlResponse{
		Type: "control_response",
		Response: map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   payload,
		},
	}
}

func errorResponse(requestID, message string) *ControlResponse {
	return &ControlResponse{
		Type: "control_response",
		Response: map[string]any{
			"subtype":    "error",
			"request_id": requestID,
			"error":      message,
		},
	}
}

package types

type SuccessEnvelope struct {
	Data any       `json:"data"`
	Meta *ListMeta `json:"meta,omitempty"`
}

// ListMeta accompanies list responses.
type ListMeta struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// MessageEnvelope is the plain `{message}` body returned by the legacy
// merchant-info backend on failure.
type MessageEnvelope struct {
	Message string `json:"message"`
}

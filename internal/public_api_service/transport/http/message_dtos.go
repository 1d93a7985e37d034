package http

// AddressDTO is one phone number with an optional carrier.
type AddressDTO struct {
	Number  string `json:"number" validate:"required,max=32"`
	Carrier string `json:"carrier,omitempty" validate:"omitempty,max=32"`
}

// SendMessageRequest is the body of POST /v1/messages. Exactly one of Text
// and View must be set.
type SendMessageRequest struct {
	Provider string         `json:"provider,omitempty"`
	From     *AddressDTO    `json:"from,omitempty"`
	To       []AddressDTO   `json:"to" validate:"required,min=1,max=1000,dive"`
	Text     string         `json:"text,omitempty" validate:"required_without=View,excluded_with=View"`
	View     string         `json:"view,omitempty" validate:"required_without=Text"`
	Data     map[string]any `json:"data,omitempty"`
	Locale   string         `json:"locale,omitempty" validate:"omitempty,bcp47_language_tag"`

	// Queue pushes the message to the job queue instead of sending inline.
	Queue        bool   `json:"queue,omitempty"`
	QueueName    string `json:"queue_name,omitempty"`
	Connection   string `json:"connection,omitempty"`
	DelaySeconds int    `json:"delay_seconds,omitempty" validate:"gte=0,lte=2592000"`
}

type SendMessageResponse struct {
	Status   string   `json:"status"` // "sent" or "queued"
	Provider string   `json:"provider"`
	JobID    string   `json:"job_id,omitempty"`
	Failures []string `json:"failures,omitempty"`
}

// PreviewMessageRequest is the body of POST /v1/messages/preview.
type PreviewMessageRequest struct {
	Provider string         `json:"provider,omitempty"`
	Text     string         `json:"text,omitempty" validate:"required_without=View,excluded_with=View"`
	View     string         `json:"view,omitempty" validate:"required_without=Text"`
	Data     map[string]any `json:"data,omitempty"`
	Locale   string         `json:"locale,omitempty" validate:"omitempty,bcp47_language_tag"`
}

type PreviewMessageResponse struct {
	Body string `json:"body"`
}

type ProviderFailuresResponse struct {
	Provider string   `json:"provider"`
	Failures []string `json:"failures"`
}

// GenericErrorResponse is the body of every error reply.
type GenericErrorResponse struct {
	Error string `json:"error"`
}

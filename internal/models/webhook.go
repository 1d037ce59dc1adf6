package models

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool
	URL     string
}

// WebhookResult holds the result of a webhook delivery.
type WebhookResult struct {
	MessageSent bool
	StatusCode  int
	Error       error
}

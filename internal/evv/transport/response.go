// Package transport is the HTTP client for the state aggregator's
// submission endpoint. It owns authentication, the response envelope, and
// the classification of failures into retryable and terminal.
package transport

import "time"

// ResponseIssue is one coded problem the aggregator reported.
type ResponseIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Envelope is the aggregator's uniform response body. Success submissions
// still carry warnings worth surfacing to the agency.
type Envelope struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message,omitempty"`
	Errors        []ResponseIssue `json:"errors,omitempty"`
	Warnings      []ResponseIssue `json:"warnings,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	RespondedAt   time.Time       `json:"respondedAt,omitempty"`
}

// Result pairs the parsed envelope with transport-level facts the
// orchestrator records on the transaction.
type Result struct {
	Envelope   Envelope
	HTTPStatus int
}

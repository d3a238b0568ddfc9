// Package models provides data structures used throughout the query gateway.
package models

import "time"

// QueryRequest represents an inbound Cypher query from a client.
// It is immutable once constructed; the gateway never mutates it.
type QueryRequest struct {
	Query      string         `json:"query"`
	Parameters map[string]any `json:"parameters,omitempty"`
	ClientID   string         `json:"client_id"`
}

// SanitizationVerdict is the sanitizer's decision for one query.
// Reason is set only when Safe is false. Warnings never block on their own.
type SanitizationVerdict struct {
	Safe     bool     `json:"safe"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ComplexityScore is the analyzer's resource-cost estimate for a query.
// Total always equals the sum of Breakdown values, and WithinLimit is
// Total <= MaxAllowed.
type ComplexityScore struct {
	Total       int            `json:"total"`
	Breakdown   map[string]int `json:"breakdown"`
	Warnings    []string       `json:"warnings,omitempty"`
	WithinLimit bool           `json:"within_limit"`
	MaxAllowed  int            `json:"max_allowed"`
}

// RateDecision is the rate limiter's verdict for one request.
// RetryAfter is set only when Allowed is false.
type RateDecision struct {
	Allowed    bool      `json:"allowed"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter float64   `json:"retry_after_seconds,omitempty"`
}

// LimitInjectionResult reports whether a bounding clause was appended.
// When Injected is false the Query field is the input, byte for byte.
type LimitInjectionResult struct {
	Query    string `json:"query"`
	Injected bool   `json:"injected"`
}

// Stage identifies a gateway pipeline stage.
type Stage string

const (
	StageSanitize   Stage = "sanitization"
	StageComplexity Stage = "complexity"
	StageRateLimit  Stage = "rate_limit"
	StageReadOnly   Stage = "read_only"
	StageInjection  Stage = "limit_injection"
	StageExecution  Stage = "execution"

	// StageCanceled marks a check abandoned because the request context
	// ended. It is not a security verdict and is never audited as one.
	StageCanceled Stage = "canceled"
)

// PipelineVerdict is the orchestrator's per-request result. An accepted
// verdict carries FinalQuery; a rejected one carries Stage and Reason.
type PipelineVerdict struct {
	Accepted   bool    `json:"accepted"`
	FinalQuery string  `json:"final_query,omitempty"`
	Stage      Stage   `json:"stage,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	RetryAfter float64 `json:"retry_after_seconds,omitempty"`
}

// Accept builds an accepted verdict carrying the post-injection query.
func Accept(finalQuery string) PipelineVerdict {
	return PipelineVerdict{Accepted: true, FinalQuery: finalQuery}
}

// Reject builds a rejected verdict for the given stage.
func Reject(stage Stage, reason string) PipelineVerdict {
	return PipelineVerdict{Accepted: false, Stage: stage, Reason: reason}
}

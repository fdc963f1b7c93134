package api

import "github.com/rmax-ai/trafficgen/pkg/traffic"

// SummaryResponse is the body of GET /v1/summary.
type SummaryResponse struct {
	traffic.Summary
	Totals traffic.ActionStats `json:"totals"`
}

// RegistryResponse is the body of GET /v1/registry.
type RegistryResponse struct {
	Count int     `json:"count"`
	IDs   []int64 `json:"ids"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

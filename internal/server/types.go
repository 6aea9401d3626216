package server

import (
	"time"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/scheduler"
)

// Invocation states reported by the API.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
)

// InvocationSummary describes a stored invocation without its tree.
type InvocationSummary struct {
	ID         string         `json:"id"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Status     string         `json:"status"`
	Modules    int            `json:"modules"`
	Summary    record.Summary `json:"summary"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// StatsResponse aggregates the stored invocations.
type StatsResponse struct {
	Invocations  int              `json:"invocations"`
	Running      int              `json:"running"`
	Passed       int              `json:"passed"`
	Failed       int              `json:"failed"`
	Tests        int              `json:"tests"`
	TestsPassed  int              `json:"tests_passed"`
	TestsFailed  int              `json:"tests_failed"`
	TestsIgnored int              `json:"tests_ignored"`
	Retention    *scheduler.Stats `json:"retention,omitempty"`
}

// QueryResponse carries the results of a jq query.
type QueryResponse struct {
	Query   string `json:"query"`
	Results []any  `json:"results"`
}

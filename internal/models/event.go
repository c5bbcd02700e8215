package models

import "time"

// SeverityUnmarked is the placeholder severity assigned to every ingested event
// until severity classification exists.
const SeverityUnmarked = "unmarked"

// Event is the canonical record extracted from a submitted envelope.
// Events are append-only: created once and never updated.
type Event struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`

	ExceptionType    string `json:"exception_type"`
	ExceptionMessage string `json:"exception_message,omitempty"`
	Severity         string `json:"severity"`

	LineNumber       int    `json:"line_number"`
	ContextStartLine int    `json:"context_start_line"`
	ContextText      string `json:"context_text,omitempty"`
	FunctionName     string `json:"function_name,omitempty"`
	ModuleName       string `json:"module_name,omitempty"`
	Filename         string `json:"filename,omitempty"`
	AbsolutePath     string `json:"absolute_path,omitempty"`

	RuntimeName    string `json:"runtime_name,omitempty"`
	RuntimeVersion string `json:"runtime_version,omitempty"`
	RuntimeBuild   string `json:"runtime_build,omitempty"`
	Platform       string `json:"platform,omitempty"`
	ServerName     string `json:"server_name,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

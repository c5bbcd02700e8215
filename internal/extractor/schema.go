package extractor

import "encoding/json"

// Optional-field schemas for the parts of an envelope the extractor reads. Pointer
// fields distinguish absent keys from zero values; a present key of the wrong JSON type
// fails decoding.

type envelopeHeader struct {
	Trace *traceHeader `json:"trace"`
}

type traceHeader struct {
	PublicKey *string `json:"public_key"`
}

type eventPayload struct {
	Exception *exceptionList `json:"exception"`
	Timestamp *string        `json:"timestamp"`
	// Level only feeds the SeverityFunc, so its JSON type is not enforced.
	Level      json.RawMessage `json:"level"`
	Platform   *string         `json:"platform"`
	ServerName *string         `json:"server_name"`
	Contexts   *contexts       `json:"contexts"`
}

type exceptionList struct {
	Values []exceptionValue `json:"values"`
}

type exceptionValue struct {
	Type       *string     `json:"type"`
	Value      *string     `json:"value"`
	Stacktrace *stacktrace `json:"stacktrace"`
}

type stacktrace struct {
	Frames []frame `json:"frames"`
}

type frame struct {
	Filename    *string  `json:"filename"`
	AbsPath     *string  `json:"abs_path"`
	Function    *string  `json:"function"`
	Module      *string  `json:"module"`
	Lineno      *int     `json:"lineno"`
	PreContext  []*string `json:"pre_context"`
	ContextLine *string   `json:"context_line"`
	PostContext []*string `json:"post_context"`
}

type contexts struct {
	Runtime *runtimeContext `json:"runtime"`
}

type runtimeContext struct {
	Name    *string `json:"name"`
	Version *string `json:"version"`
	Build   *string `json:"build"`
}

// levelText returns a string level unquoted and any other JSON value as its raw text.
func levelText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

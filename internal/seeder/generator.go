// Package seeder generates fake error envelopes and submits them to a running server.
package seeder

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/faultline/internal/envelope"
)

var exceptionTypes = []string{
	"ZeroDivisionError",
	"KeyError",
	"ValueError",
	"TypeError",
	"AttributeError",
	"IndexError",
	"ConnectionError",
	"TimeoutError",
	"PermissionError",
	"FileNotFoundError",
}

var levels = []string{"error", "fatal", "warning"}

// Generator builds Sentry-style error envelopes with plausible content.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a Generator. A seed of 0 uses a random seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Event returns an event payload timestamped ts.
func (g *Generator) Event(ts time.Time) map[string]any {
	f := g.faker

	module := strings.ToLower(f.AppName())
	module = strings.ReplaceAll(module, " ", "_")
	function := strings.ToLower(f.HackerVerb()) + "_" + strings.ToLower(f.Noun())
	function = strings.ReplaceAll(function, " ", "_")
	filename := fmt.Sprintf("%s/%s.py", module, strings.ToLower(f.Noun()))
	lineno := f.IntRange(5, 800)

	preContext := make([]string, f.IntRange(0, 5))
	for i := range preContext {
		preContext[i] = "    " + strings.ToLower(f.Word()) + " = " + strings.ToLower(f.Word()) + "()"
	}
	postContext := make([]string, f.IntRange(0, 3))
	for i := range postContext {
		postContext[i] = "    return " + strings.ToLower(f.Word())
	}

	return map[string]any{
		"event_id":    strings.ReplaceAll(f.UUID(), "-", ""),
		"level":       f.RandomString(levels),
		"platform":    "python",
		"server_name": strings.ToLower(f.Noun()) + "-" + fmt.Sprint(f.IntRange(1, 9)),
		"timestamp":   ts.UTC().Format(time.RFC3339Nano),
		"contexts": map[string]any{
			"runtime": map[string]any{
				"name":    "CPython",
				"version": fmt.Sprintf("3.%d.%d", f.IntRange(9, 13), f.IntRange(0, 9)),
			},
		},
		"exception": map[string]any{
			"values": []any{map[string]any{
				"type":  f.RandomString(exceptionTypes),
				"value": f.Sentence(f.IntRange(3, 8)),
				"stacktrace": map[string]any{
					"frames": []any{map[string]any{
						"filename":     filename,
						"abs_path":     "/srv/" + filename,
						"function":     function,
						"module":       strings.ReplaceAll(strings.TrimSuffix(filename, ".py"), "/", "."),
						"lineno":       lineno,
						"pre_context":  preContext,
						"context_line": "    raise " + f.RandomString(exceptionTypes) + "()",
						"post_context": postContext,
					}},
				},
			}},
		},
	}
}

// Envelope returns an encoded envelope carrying one event for projectKey.
func (g *Generator) Envelope(projectKey string, ts time.Time) ([]byte, error) {
	event := g.Event(ts)
	header := map[string]any{
		"event_id": event["event_id"],
		"sent_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"sdk":      map[string]string{"name": "sentry.python", "version": "2.0.0"},
		"trace": map[string]any{
			"public_key": projectKey,
			"trace_id":   strings.ReplaceAll(g.faker.UUID(), "-", ""),
		},
	}
	return envelope.Encode(header, envelope.Part{
		Header:  map[string]string{"type": "event", "content_type": "application/json"},
		Payload: event,
	})
}

// Package messaging publishes ingestion events on the NATS message bus.
package messaging

// Subject constants follow the pattern {domain}.{resource}.{action}.
const (
	// SubjectEventsIngested carries every event after it has been persisted.
	SubjectEventsIngested = "faultline.events.ingested"
)

// ProjectSubject scopes subject to one project, e.g. faultline.events.ingested.<project>.
func ProjectSubject(subject, projectID string) string {
	return subject + "." + projectID
}

package notification

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/faultline/internal/models"
)

func testEvent() *models.Event {
	return &models.Event{
		ID:               "0190f0a8-7f00-7000-8000-000000000001",
		ProjectID:        "proj-token",
		ExceptionType:    "ZeroDivisionError",
		ExceptionMessage: "division by zero",
		Severity:         models.SeverityUnmarked,
		LineNumber:       42,
		AbsolutePath:     "/srv/app/main.py",
		ServerName:       "web-1",
		Timestamp:        time.Date(2024, 5, 20, 10, 15, 30, 0, time.UTC),
	}
}

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestBuildEventData(t *testing.T) {
	event := testEvent()

	generic := BuildEventData(event, models.NotificationChannel{Kind: models.ChannelGeneric, ChannelName: "#x", Username: "bot"})
	assert.Equal(t, event.ID, generic.UUID)
	assert.Equal(t, "/srv/app/main.py", generic.Path)
	assert.Equal(t, 42, generic.Line)
	assert.Empty(t, generic.Channel)
	assert.Empty(t, generic.Username)

	slack := BuildEventData(event, models.NotificationChannel{Kind: models.ChannelSlack, ChannelName: "#x", Username: "bot"})
	assert.Equal(t, "#x", slack.Channel)
	assert.Equal(t, "bot", slack.Username)
}

func TestFormatGeneric(t *testing.T) {
	m := toMap(t, Format(testEvent(), models.NotificationChannel{Kind: models.ChannelGeneric}, FormatOptions{}))

	assert.Equal(t, "0190f0a8-7f00-7000-8000-000000000001", m["uuid"])
	assert.Equal(t, "ZeroDivisionError", m["exception_type"])
	assert.Equal(t, "division by zero", m["exception_message"])
	assert.Equal(t, "2024-05-20T10:15:30Z", m["timestamp"])
	assert.Equal(t, "/srv/app/main.py", m["path"])
	assert.Equal(t, float64(42), m["line"])
	assert.Equal(t, "web-1", m["server_name"])
	assert.Equal(t, "unmarked", m["severity"])
	assert.NotContains(t, m, "channel")
	assert.NotContains(t, m, "username")
}

func TestFormatSlack(t *testing.T) {
	ch := models.NotificationChannel{Kind: models.ChannelSlack, ChannelName: "#alerts", Username: "faultline"}
	m := toMap(t, Format(testEvent(), ch, FormatOptions{}))

	assert.Contains(t, m["text"], "ZeroDivisionError")
	assert.Contains(t, m["text"], "division by zero")
	assert.Equal(t, "#alerts", m["channel"])
	assert.Equal(t, "faultline", m["username"])

	m = toMap(t, Format(testEvent(), models.NotificationChannel{Kind: models.ChannelSlack}, FormatOptions{}))
	assert.NotContains(t, m, "channel")
	assert.NotContains(t, m, "username")
}

func TestFormatMattermost(t *testing.T) {
	event := testEvent()
	event.Severity = "high"
	ch := models.NotificationChannel{Kind: models.ChannelMattermost}

	msg, ok := Format(event, ch, FormatOptions{IssuesURL: "https://faultline.example/issues/"}).(mattermostMessage)
	require.True(t, ok)
	assert.Equal(t, "", msg.Text)
	require.Len(t, msg.Attachments, 1)

	att := msg.Attachments[0]
	assert.Equal(t, "🚨 ZeroDivisionError", att.Title)
	assert.Equal(t, "#FF0000", att.Color)
	assert.Equal(t, "Severity: HIGH", att.Footer)
	assert.Equal(t, mattermostFooterIcon, att.FooterIcon)
	assert.Contains(t, att.Text, "division by zero")
	assert.Contains(t, att.Text, "20.05.2024 10:15:30")
	assert.Contains(t, att.Text, "/srv/app/main.py:42")
	assert.Contains(t, att.Text, "web-1")
	assert.Contains(t, att.Text, "(https://faultline.example/issues/"+event.ID+")")

	m := toMap(t, msg)
	assert.Contains(t, m, "text")
	assert.Contains(t, m, "attachments")
}

func TestFormatMattermost_Defaults(t *testing.T) {
	event := &models.Event{Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}

	msg := Format(event, models.NotificationChannel{Kind: models.ChannelMattermost}, FormatOptions{}).(mattermostMessage)
	att := msg.Attachments[0]
	assert.Equal(t, "🚨 New error", att.Title)
	assert.Equal(t, "Severity: UNKNOWN", att.Footer)
	assert.Contains(t, att.Text, "No description")
	assert.Contains(t, att.Text, "N/A:0")
	assert.NotContains(t, att.Text, "View issue")
}

func TestSeverityColor(t *testing.T) {
	tests := []struct {
		severity string
		want     string
	}{
		{"high", "#FF0000"},
		{"medium", "#FFA500"},
		{"low", "#00FF00"},
		{"unmarked", "#00FF00"},
		{"", "#00FF00"},
	}
	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			assert.Equal(t, tt.want, severityColor(tt.severity))
		})
	}
}

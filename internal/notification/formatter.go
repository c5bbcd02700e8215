package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/telhawk-systems/faultline/internal/models"
)

const (
	mattermostFooterIcon = "https://mattermost.com/wp-content/uploads/2022/02/icon.png"
	mattermostTimeLayout = "02.01.2006 15:04:05"
)

// EventData is the field set every sink kind is built from. The generic kind posts it as is.
type EventData struct {
	UUID             string    `json:"uuid"`
	ExceptionType    string    `json:"exception_type"`
	ExceptionMessage string    `json:"exception_message"`
	Timestamp        time.Time `json:"timestamp"`
	Path             string    `json:"path"`
	Line             int       `json:"line"`
	ServerName       string    `json:"server_name"`
	Severity         string    `json:"severity"`
	Channel          string    `json:"channel,omitempty"`
	Username         string    `json:"username,omitempty"`
}

// FormatOptions carries deployment settings that end up in message bodies.
type FormatOptions struct {
	// IssuesURL, when set, adds a link to the event in mattermost messages.
	IssuesURL string
}

// Formatter builds the JSON body for one sink kind.
type Formatter func(data EventData, opts FormatOptions) any

var formatters = map[models.ChannelKind]Formatter{
	models.ChannelGeneric:    formatGeneric,
	models.ChannelSlack:      formatSlack,
	models.ChannelMattermost: formatMattermost,
}

// BuildEventData collects the delivery fields for event. Channel overrides are only
// carried for slack and mattermost.
func BuildEventData(event *models.Event, ch models.NotificationChannel) EventData {
	data := EventData{
		UUID:             event.ID,
		ExceptionType:    event.ExceptionType,
		ExceptionMessage: event.ExceptionMessage,
		Timestamp:        event.Timestamp,
		Path:             event.AbsolutePath,
		Line:             event.LineNumber,
		ServerName:       event.ServerName,
		Severity:         event.Severity,
	}
	switch ch.Kind {
	case models.ChannelSlack, models.ChannelMattermost:
		data.Channel = ch.ChannelName
		data.Username = ch.Username
	}
	return data
}

// Format renders the request body for delivering event to ch.
func Format(event *models.Event, ch models.NotificationChannel, opts FormatOptions) any {
	f, ok := formatters[ch.Kind]
	if !ok {
		f = formatGeneric
	}
	return f(BuildEventData(event, ch), opts)
}

func formatGeneric(data EventData, _ FormatOptions) any {
	return data
}

type slackMessage struct {
	Text     string `json:"text"`
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
}

func formatSlack(data EventData, _ FormatOptions) any {
	text := fmt.Sprintf("🚨 %s", orDefault(data.ExceptionType, "New error"))
	if data.ExceptionMessage != "" {
		text += ": " + data.ExceptionMessage
	}
	if data.Path != "" {
		text += fmt.Sprintf(" (%s:%d)", data.Path, data.Line)
	}
	return slackMessage{
		Text:     text,
		Channel:  data.Channel,
		Username: data.Username,
	}
}

type mattermostMessage struct {
	Text        string                 `json:"text"`
	Channel     string                 `json:"channel,omitempty"`
	Username    string                 `json:"username,omitempty"`
	Attachments []mattermostAttachment `json:"attachments"`
}

type mattermostAttachment struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	Color      string `json:"color"`
	Footer     string `json:"footer"`
	FooterIcon string `json:"footer_icon"`
}

func formatMattermost(data EventData, opts FormatOptions) any {
	var b strings.Builder
	b.WriteString("### Description\n")
	b.WriteString(orDefault(data.ExceptionMessage, "No description"))
	b.WriteString("\n\n### Details\n")
	fmt.Fprintf(&b, "- **Time:** %s\n", data.Timestamp.UTC().Format(mattermostTimeLayout))
	fmt.Fprintf(&b, "- **File:** %s:%d\n", orDefault(data.Path, "N/A"), data.Line)
	fmt.Fprintf(&b, "- **Server:** %s\n", orDefault(data.ServerName, "N/A"))
	if opts.IssuesURL != "" {
		fmt.Fprintf(&b, "\n[View issue](%s/%s)", strings.TrimRight(opts.IssuesURL, "/"), data.UUID)
	}

	return mattermostMessage{
		Text:     "",
		Channel:  data.Channel,
		Username: data.Username,
		Attachments: []mattermostAttachment{{
			Title:      "🚨 " + orDefault(data.ExceptionType, "New error"),
			Text:       b.String(),
			Color:      severityColor(data.Severity),
			Footer:     "Severity: " + strings.ToUpper(orDefault(data.Severity, "unknown")),
			FooterIcon: mattermostFooterIcon,
		}},
	}
}

func severityColor(severity string) string {
	switch severity {
	case "high":
		return "#FF0000"
	case "medium":
		return "#FFA500"
	default:
		return "#00FF00"
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

package logging

import (
	"log/slog"
	"time"
)

// Field names shared across packages.
const (
	FieldService     = "service"
	FieldRequestID   = "request_id"
	FieldProjectID   = "project_id"
	FieldEventID     = "event_id"
	FieldChannelID   = "channel_id"
	FieldChannelKind = "channel_kind"
	FieldURL         = "url"
	FieldIP          = "ip"
	FieldStatus      = "status"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func ProjectID(id string) slog.Attr {
	return slog.String(FieldProjectID, id)
}

func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

func ChannelID(id int64) slog.Attr {
	return slog.Int64(FieldChannelID, id)
}

func ChannelKind(kind string) slog.Attr {
	return slog.String(FieldChannelKind, kind)
}

func URL(u string) slog.Attr {
	return slog.String(FieldURL, u)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error. A nil error yields an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

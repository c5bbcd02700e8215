package models

import (
	"strings"
	"time"
)

// ChannelKind identifies the payload shape a notification sink expects.
type ChannelKind string

const (
	ChannelGeneric    ChannelKind = "generic"
	ChannelSlack      ChannelKind = "slack"
	ChannelMattermost ChannelKind = "mattermost"
)

// ParseChannelKind maps a stored kind to a ChannelKind.
// Anything that is not slack or mattermost is delivered as a generic webhook.
func ParseChannelKind(s string) ChannelKind {
	switch ChannelKind(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelSlack:
		return ChannelSlack
	case ChannelMattermost:
		return ChannelMattermost
	default:
		return ChannelGeneric
	}
}

func (k ChannelKind) String() string {
	return string(k)
}

// NotificationChannel is a configured webhook sink for a project.
type NotificationChannel struct {
	ID          int64       `json:"id" yaml:"id"`
	ProjectID   string      `json:"project_id" yaml:"project_id"`
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Kind        ChannelKind `json:"kind" yaml:"kind"`
	TargetURL   string      `json:"target_url" yaml:"target_url"`
	ChannelName string      `json:"channel_name,omitempty" yaml:"channel_name"`
	Username    string      `json:"username,omitempty" yaml:"username"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChannelKind(t *testing.T) {
	tests := []struct {
		in   string
		want ChannelKind
	}{
		{"slack", ChannelSlack},
		{"Slack ", ChannelSlack},
		{"mattermost", ChannelMattermost},
		{"MATTERMOST", ChannelMattermost},
		{"generic", ChannelGeneric},
		{"webhook", ChannelGeneric},
		{"", ChannelGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseChannelKind(tt.in))
		})
	}
}

package mqtt

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		filter  string
		wantErr bool
	}{
		{"chimp/topic", false},
		{"chimp/+/state", false},
		{"chimp/#", false},
		{"#", false},
		{"+", false},
		{"", true},
		{"chimp/#/state", true},
		{"chimp/ab#", true},
		{"chimp/a+", true},
		{"chimp/\u0000", true},
		{strings.Repeat("a", maxTopicLength+1), true},
	}

	for _, tt := range tests {
		err := ValidateTopicFilter(tt.filter)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTopicFilter(%.20q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidateTopicFilter(%.20q) error = %v, want ErrInvalidTopic", tt.filter, err)
		}
	}
}

func TestTopicMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"chimp/topic", "chimp/topic", true},
		{"chimp/topic", "chimp/other", false},
		{"chimp/+", "chimp/topic", true},
		{"chimp/+", "chimp/topic/deep", false},
		{"chimp/#", "chimp/topic/deep", true},
		{"chimp/#", "chimp", true},
		{"+/topic", "chimp/topic", true},
		{"#", "$SYS/broker", false},
		{"+/broker", "$SYS/broker", false},
		{"$SYS/#", "$SYS/broker", true},
		{"", "chimp/topic", false},
	}

	for _, tt := range tests {
		if got := TopicMatch(tt.filter, tt.topic); got != tt.want {
			t.Errorf("TopicMatch(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxTopicLength is the longest topic the MQTT length prefix can encode.
const maxTopicLength = 65535

// ValidateTopicFilter checks a subscription filter against the MQTT
// wildcard rules:
//   - "+" must occupy a whole level
//   - "#" must occupy a whole level and be the last one
//   - no NUL characters, valid UTF-8, at most 65535 bytes
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if len(filter) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if !utf8.ValidString(filter) || strings.ContainsRune(filter, '\u0000') {
		return fmt.Errorf("%w: topic contains illegal characters", ErrInvalidTopic)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q may only be used as the last level", ErrInvalidTopic, "#")
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q must occupy a whole level", ErrInvalidTopic, "+")
		}
	}

	return nil
}

// TopicMatch reports whether a concrete topic matches a subscription filter.
// Filters starting with a wildcard never match topics starting with "$".
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if filter == topic {
		return true
	}

	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	if strings.HasPrefix(topic, "$") && (filterLevels[0] == "+" || filterLevels[0] == "#") {
		return false
	}

	for i, fLevel := range filterLevels {
		if fLevel == "#" {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if fLevel != "+" && fLevel != topicLevels[i] {
			return false
		}
	}

	return len(filterLevels) == len(topicLevels)
}

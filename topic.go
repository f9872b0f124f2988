package umqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Topic errors.
var (
	ErrInvalidTopicName   = fmt.Errorf("%w: invalid topic name", ErrEncode)
	ErrInvalidTopicFilter = fmt.Errorf("%w: invalid topic filter", ErrEncode)
	ErrEmptyTopic         = fmt.Errorf("%w: topic cannot be empty", ErrEncode)
)

const (
	topicSeparator      = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// validateTopicChars checks the constraints shared by names and filters.
func validateTopicChars(s string, invalid error) error {
	if s == "" {
		return ErrEmptyTopic
	}

	if len(s) > maxUint16 || !utf8.ValidString(s) || strings.IndexByte(s, 0) >= 0 {
		return invalid
	}

	return nil
}

// ValidateTopicName validates a topic name used for PUBLISH.
// Topic names cannot contain wildcards.
func ValidateTopicName(topic string) error {
	if err := validateTopicChars(topic, ErrInvalidTopicName); err != nil {
		return err
	}

	if strings.ContainsAny(topic, singleLevelWildcard+multiLevelWildcard) {
		return ErrInvalidTopicName
	}

	return nil
}

// ValidateTopicFilter validates a subscription topic filter.
// '+' must occupy a whole level and '#' must be the whole last level.
func ValidateTopicFilter(filter string) error {
	if err := validateTopicChars(filter, ErrInvalidTopicFilter); err != nil {
		return err
	}

	levels := strings.Split(filter, topicSeparator)

	for i, level := range levels {
		if strings.Contains(level, singleLevelWildcard) && level != singleLevelWildcard {
			return ErrInvalidTopicFilter
		}

		if strings.Contains(level, multiLevelWildcard) {
			if level != multiLevelWildcard || i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		}
	}

	return nil
}

// TopicMatch reports whether a topic name matches a topic filter.
//
// Levels are compared one by one. '+' matches exactly one non-empty level and
// '#' matches all remaining levels including none, so "a/#" matches "a".
// Topics starting with '$' are not matched by a leading wildcard.
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	if topic[0] == '$' && (filter[0] == '+' || filter[0] == '#') {
		return false
	}

	for {
		flevel, frest, fmore := strings.Cut(filter, topicSeparator)
		if flevel == multiLevelWildcard {
			return !fmore
		}

		tlevel, trest, tmore := strings.Cut(topic, topicSeparator)

		if flevel == singleLevelWildcard {
			if tlevel == "" {
				return false
			}
		} else if flevel != tlevel {
			return false
		}

		switch {
		case fmore && tmore:
			filter, topic = frest, trest
		case !fmore && !tmore:
			return true
		case fmore:
			// topic exhausted: only a trailing "#" still matches
			return frest == multiLevelWildcard
		default:
			return false
		}
	}
}

// IsSystemTopic returns true if the topic is a broker system topic ($SYS and friends).
func IsSystemTopic(topic string) bool {
	return strings.HasPrefix(topic, "$")
}

package tether

import (
	"fmt"
	"strings"
)

const (
	topicSeparator   = "/"
	singleLevelMatch = "+"
	multiLevelMatch  = "#"
)

// ThreePartTopic is a concrete Tether topic split into its segments.
type ThreePartTopic struct {
	Type string
	ID   string
	Plug string
}

// String joins the segments back into a topic.
func (t ThreePartTopic) String() string {
	return t.Type + topicSeparator + t.ID + topicSeparator + t.Plug
}

// OutputTopic returns the concrete topic an output plug publishes on.
func OutputTopic(agentType, agentID, plugName string) string {
	return agentType + topicSeparator + agentID + topicSeparator + plugName
}

// InputFilter returns the filter an input plug subscribes with: any agent
// type and any agent ID publishing on a plug called plugName.
func InputFilter(plugName string) string {
	return singleLevelMatch + topicSeparator + singleLevelMatch + topicSeparator + plugName
}

// ValidateName reports whether s may be used as a single topic segment:
// a plug name, agent type or agent ID.
func ValidateName(s string) error {
	if s == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidName)
	}
	if strings.ContainsAny(s, topicSeparator+singleLevelMatch+multiLevelMatch) {
		return fmt.Errorf("%w: %q must not contain '/', '+' or '#'", ErrInvalidName, s)
	}
	return nil
}

// ParseTopic splits a concrete three-part topic. It fails for filters,
// malformed topics and topics with any other number of segments.
func ParseTopic(topic string) (ThreePartTopic, error) {
	parts := strings.Split(topic, topicSeparator)
	if len(parts) != 3 {
		return ThreePartTopic{}, fmt.Errorf("%w: %q does not have three segments", ErrInvalidTopic, topic)
	}
	for _, p := range parts {
		if err := ValidateName(p); err != nil {
			return ThreePartTopic{}, fmt.Errorf("%w: %q: %w", ErrInvalidTopic, topic, err)
		}
	}
	return ThreePartTopic{Type: parts[0], ID: parts[1], Plug: parts[2]}, nil
}

// ValidateFilter checks that filter is a well-formed subscription filter:
// no empty levels, wildcards occupying a whole level and '#' only last.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: filter must not be empty", ErrInvalidTopic)
	}
	levels := strings.Split(filter, topicSeparator)
	for i, level := range levels {
		switch {
		case level == "":
			return fmt.Errorf("%w: %q has an empty level", ErrInvalidTopic, filter)
		case level == multiLevelMatch && i != len(levels)-1:
			return fmt.Errorf("%w: %q has '#' before the last level", ErrInvalidTopic, filter)
		case level != singleLevelMatch && level != multiLevelMatch &&
			strings.ContainsAny(level, singleLevelMatch+multiLevelMatch):
			return fmt.Errorf("%w: %q mixes wildcards into a level", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// ValidateConcreteTopic checks that topic can be published to.
func ValidateConcreteTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic must not be empty", ErrInvalidTopic)
	}
	for _, level := range strings.Split(topic, topicSeparator) {
		if level == "" {
			return fmt.Errorf("%w: %q has an empty level", ErrInvalidTopic, topic)
		}
	}
	if strings.ContainsAny(topic, singleLevelMatch+multiLevelMatch) {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	return nil
}

// Matches reports whether a delivered topic matches a subscription filter
// using MQTT segment rules.
//
// '+' matches exactly one non-empty level. A trailing '#' matches the
// remaining levels, including none ("a/#" matches "a"). Literal levels are
// compared byte for byte. Malformed input (empty levels, wildcards inside
// the topic, '#' not last) never matches. Filters starting with a wildcard
// do not match topics beginning with '$'.
func Matches(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if strings.ContainsAny(topic, singleLevelMatch+multiLevelMatch) {
		return false
	}

	fl := strings.Split(filter, topicSeparator)
	tl := strings.Split(topic, topicSeparator)

	for _, level := range tl {
		if level == "" {
			return false
		}
	}

	if strings.HasPrefix(topic, "$") && (fl[0] == singleLevelMatch || fl[0] == multiLevelMatch) {
		return false
	}

	for i, level := range fl {
		switch level {
		case "":
			return false
		case multiLevelMatch:
			return i == len(fl)-1
		case singleLevelMatch:
			if i >= len(tl) {
				return false
			}
		default:
			if strings.ContainsAny(level, singleLevelMatch+multiLevelMatch) {
				return false
			}
			if i >= len(tl) || tl[i] != level {
				return false
			}
		}
	}

	return len(fl) == len(tl)
}

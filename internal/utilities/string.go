package utilities

import (
	"path/filepath"
	"strings"
)

// SplitTopic splits "greenhouse/sensor/..." at the first slash.
// A topic without a slash yields an empty greenhouse and the topic as sensor topic.
func SplitTopic(topic string) (greenhouseID, sensorTopic string) {
	topic = strings.Trim(topic, "/")
	idx := strings.Index(topic, "/")
	if idx < 0 {
		return "", topic
	}
	return topic[:idx], topic[idx+1:]
}

// JoinTopic builds the subscription topic for a greenhouse sensor.
func JoinTopic(greenhouseID, sensorTopic string) string {
	if greenhouseID == "" {
		return sensorTopic
	}
	return greenhouseID + "/" + sensorTopic
}

// TopicLogPath maps a topic to root/<first segment>/<topic with / replaced by _>.log.
func TopicLogPath(root, topic string) string {
	topic = strings.Trim(topic, "/")
	first := topic
	if idx := strings.Index(topic, "/"); idx >= 0 {
		first = topic[:idx]
	}
	return filepath.Join(root, sanitizeSegment(first), sanitizeSegment(strings.ReplaceAll(topic, "/", "_"))+".log")
}

func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

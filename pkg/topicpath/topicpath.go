// Package topicpath maps message topics onto storage paths and decides which
// topics are stored at all.
package topicpath

import (
	"sort"
	"strings"
	"time"
)

// Separator splits topic levels and storage path segments alike.
const Separator = "/"

// ObjectTimeLayout is the UTC timestamp prefix of every object name.
const ObjectTimeLayout = "2006-01-02-15-04-05"

// DefaultTopics is the allow-list used when none is configured.
var DefaultTopics = []string{
	"/galaxy/launch",
	"/galaxy/get_inputs",
	"/galaxy/get_outputs",
	"/galaxy/get_workflows",
	"/galaxy/error",
	"/galaxy/info",
	"/RADON/log",
}

// MapTopic splits topic into its non-empty levels, in order. Leading,
// trailing and repeated separators are dropped, so "/a//b/" and "a/b" both
// map to ["a", "b"].
func MapTopic(topic string) []string {
	parts := strings.Split(topic, Separator)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// CollectionPaths returns the absolute collection path of every prefix of
// segments, root first: ["a", "b"] gives ["/a/", "/a/b/"].
func CollectionPaths(segments []string) []string {
	paths := make([]string, 0, len(segments))
	cur := Separator
	for _, s := range segments {
		cur += s + Separator
		paths = append(paths, cur)
	}
	return paths
}

// ObjectName names the record written for a message on topic received at at.
// Two messages on one topic within the same second share a name.
func ObjectName(topic string, at time.Time) string {
	return at.UTC().Format(ObjectTimeLayout) + strings.ReplaceAll(topic, Separator, "_")
}

// AllowList is an exact, case-sensitive set of topics.
type AllowList struct {
	topics map[string]struct{}
}

// NewAllowList builds an allow-list. Empty strings are ignored.
func NewAllowList(topics ...string) AllowList {
	a := AllowList{topics: make(map[string]struct{}, len(topics))}
	for _, t := range topics {
		if t != "" {
			a.topics[t] = struct{}{}
		}
	}
	return a
}

// Allowed reports whether topic is stored.
func (a AllowList) Allowed(topic string) bool {
	_, ok := a.topics[topic]
	return ok
}

// Topics returns the allowed topics, sorted.
func (a AllowList) Topics() []string {
	out := make([]string, 0, len(a.topics))
	for t := range a.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of allowed topics.
func (a AllowList) Len() int { return len(a.topics) }

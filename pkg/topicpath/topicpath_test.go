package topicpath_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/topicpath"
	"github.com/stretchr/testify/assert"
)

func TestMapTopic(t *testing.T) {
	testCases := []struct {
		topic string
		want  []string
	}{
		{topic: "/galaxy/info", want: []string{"galaxy", "info"}},
		{topic: "galaxy/info", want: []string{"galaxy", "info"}},
		{topic: "//galaxy//info//", want: []string{"galaxy", "info"}},
		{topic: "/a/b/", want: []string{"a", "b"}},
		{topic: "/", want: []string{}},
		{topic: "", want: []string{}},
	}
	for _, tc := range testCases {
		t.Run(tc.topic, func(t *testing.T) {
			assert.Equal(t, tc.want, topicpath.MapTopic(tc.topic))
		})
	}
}

func TestMapTopic_SeparatorNoiseMatchesCanonical(t *testing.T) {
	for _, topic := range topicpath.DefaultTopics {
		canonical := topicpath.MapTopic(topic)
		noisy := []string{
			"/" + topic,
			topic + "/",
			topic + "//",
			"//" + topic + "//",
		}
		for _, n := range noisy {
			assert.Equal(t, canonical, topicpath.MapTopic(n), "topic %q", n)
		}
		doubled := topicpath.MapTopic(replaceSeparators(topic))
		assert.Equal(t, canonical, doubled)
	}
}

func replaceSeparators(topic string) string {
	out := ""
	for _, r := range topic {
		if r == '/' {
			out += "//"
			continue
		}
		out += string(r)
	}
	return out
}

func TestCollectionPaths(t *testing.T) {
	assert.Equal(t, []string{"/a/", "/a/b/", "/a/b/c/"}, topicpath.CollectionPaths([]string{"a", "b", "c"}))
	assert.Empty(t, topicpath.CollectionPaths(nil))
}

func TestObjectName(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2026-03-04-04-06-07_galaxy_info", topicpath.ObjectName("/galaxy/info", at))
	assert.Equal(t, "2026-03-04-04-06-07RADON_log", topicpath.ObjectName("RADON/log", at))
}

func TestAllowList(t *testing.T) {
	allow := topicpath.NewAllowList(topicpath.DefaultTopics...)

	assert.True(t, allow.Allowed("/galaxy/info"))
	assert.True(t, allow.Allowed("/RADON/log"))
	assert.False(t, allow.Allowed("/radon/log"), "matching is case-sensitive")
	assert.False(t, allow.Allowed("galaxy/info"), "matching is exact")
	assert.False(t, allow.Allowed("/unknown/topic"))
	assert.Equal(t, len(topicpath.DefaultTopics), allow.Len())
	assert.Equal(t, "/RADON/log", allow.Topics()[0])

	empty := topicpath.NewAllowList("", "")
	assert.Zero(t, empty.Len())
	assert.False(t, empty.Allowed(""))
}

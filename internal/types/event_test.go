package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterMap(t *testing.T) {
	since := int64(100)
	f := Filter{Kinds: []int{KindZapReceipt}, PTags: []string{"abc"}, Since: &since}

	m := f.Map()
	assert.Equal(t, []int{9735}, m["kinds"])
	assert.Equal(t, []string{"abc"}, m["#p"])
	assert.Equal(t, int64(100), m["since"])
	assert.NotContains(t, m, "authors")
	assert.NotContains(t, m, "limit")
}

func TestFilterMatches(t *testing.T) {
	evt := &Event{
		ID:        "id1",
		PubKey:    "wallet",
		Kind:      KindNWCResponse,
		CreatedAt: 50,
		Tags:      [][]string{{"p", "app"}, {"e", "req1"}},
	}

	assert.True(t, Filter{}.Matches(evt))
	assert.True(t, Filter{Kinds: []int{KindNWCResponse}, Authors: []string{"wallet"}, ETags: []string{"req1"}}.Matches(evt))
	assert.False(t, Filter{ETags: []string{"req2"}}.Matches(evt))
	assert.False(t, Filter{Authors: []string{"someone"}}.Matches(evt))
	assert.False(t, Filter{Kinds: []int{KindZapReceipt}}.Matches(evt))
	assert.True(t, Filter{PTags: []string{"x", "app"}}.Matches(evt))

	late := int64(60)
	assert.False(t, Filter{Since: &late}.Matches(evt))
	early := int64(10)
	assert.False(t, Filter{Until: &early}.Matches(evt))
}

func TestTagValue(t *testing.T) {
	evt := &Event{Tags: [][]string{{"bolt11"}, {"description", "{}"}, {"description", "second"}}}
	v, ok := evt.TagValue("description")
	assert.True(t, ok)
	assert.Equal(t, "{}", v)

	_, ok = evt.TagValue("bolt11")
	assert.False(t, ok, "tag without a value is not a match")
}

func TestProfileBestName(t *testing.T) {
	var nilProfile *ProfileInfo
	assert.Equal(t, "", nilProfile.BestName())
	assert.Equal(t, "alice", (&ProfileInfo{Name: "alice", DisplayName: "Alice"}).BestName())
	assert.Equal(t, "Alice", (&ProfileInfo{DisplayName: "Alice"}).BestName())
}

package book

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageKeyIdentity(t *testing.T) {
	assert.Equal(t, IntKey(3).ID(), StringKey("3").ID())
	assert.NotEqual(t, IntKey(3).ID(), StringKey("iii").ID())
	assert.Equal(t, "3", StringKey(" 3 ").String())
}

func TestPageKeyOrdering(t *testing.T) {
	doc := NewDocument("B009SE1Z9E")
	doc.Put(PageRecord{Key: StringKey("10"), Text: "ten"})
	doc.Put(PageRecord{Key: IntKey(2), Text: "two"})
	doc.Put(PageRecord{Key: StringKey("cover"), Text: "cover"})
	doc.Put(PageRecord{Key: IntKey(1), Text: "one"})

	var got []string
	for _, p := range doc.Pages() {
		got = append(got, p.Key.String())
	}
	assert.Equal(t, []string{"1", "2", "10", "cover"}, got)
	assert.Equal(t, 10, doc.MaxNumericKey())
}

func TestPageKeyJSON(t *testing.T) {
	b, err := json.Marshal([]PageKey{IntKey(4), StringKey("4"), StringKey("toc")})
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"4","toc"]`, string(b))

	var keys []PageKey
	require.NoError(t, json.Unmarshal(b, &keys))
	require.Len(t, keys, 3)
	n, ok := keys[0].Int()
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Equal(t, "toc", keys[2].String())
}

func TestPageKeyFromJSONNumbers(t *testing.T) {
	var keys []PageKey
	require.NoError(t, json.Unmarshal([]byte(`[5, 5.0, 3.7, 1e15]`), &keys))
	require.Len(t, keys, 4)

	n, ok := keys[0].Int()
	assert.True(t, ok)
	assert.Equal(t, 5, n)
	assert.Equal(t, keys[0].ID(), keys[1].ID())

	_, ok = keys[2].Int()
	assert.False(t, ok)
	assert.Equal(t, "3.7", keys[2].String())
	_, ok = keys[3].Int()
	assert.False(t, ok)

	_, ok = FloatKey(-0.5)
	assert.False(t, ok)
}

func TestTierOrderAndNames(t *testing.T) {
	assert.Greater(t, TierNetworkJSON, TierScript)
	assert.Greater(t, TierScript, TierDOM)
	assert.Greater(t, TierDOM, TierRawHTML)
	assert.Greater(t, TierRawHTML, TierScreenshot)
	assert.Equal(t, TierDOM, ParseTier("dom"))
	assert.Equal(t, "network_json", TierNetworkJSON.String())
}

func TestSortedImages(t *testing.T) {
	doc := NewDocument("")
	doc.Images = []ImageAsset{
		{Key: IntKey(2), Index: 0, FileName: "c"},
		{Key: IntKey(1), Index: 1, FileName: "b"},
		{Key: IntKey(1), Index: 0, FileName: "a"},
	}
	var names []string
	for _, img := range doc.SortedImages() {
		names = append(names, img.FileName)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

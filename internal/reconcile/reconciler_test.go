package reconcile

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcosevegrand/kindle-extract/internal/book"
)

func keys(doc *book.Document) []string {
	var out []string
	for _, p := range doc.Pages() {
		out = append(out, p.Key.String())
	}
	return out
}

func TestMergeTierPrecedence(t *testing.T) {
	for _, order := range [][]book.Candidate{
		{book.Keyed(book.IntKey(5), "A", book.TierNetworkJSON), book.Keyed(book.IntKey(5), "B", book.TierDOM)},
		{book.Keyed(book.IntKey(5), "B", book.TierDOM), book.Keyed(book.IntKey(5), "A", book.TierNetworkJSON)},
	} {
		doc := book.NewDocument("")
		res := New(nil).Merge(order, doc)

		rec, ok := doc.Get(book.IntKey(5))
		require.True(t, ok)
		assert.Equal(t, "A", rec.Text)
		assert.Equal(t, book.TierNetworkJSON, rec.SourceTier)
		assert.Len(t, res.Conflicts, 1)
		assert.Equal(t, 1, doc.Len())
	}
}

func TestMergeTierTieKeepsLongerText(t *testing.T) {
	doc := book.NewDocument("")
	r := New(nil)
	r.Merge([]book.Candidate{book.Keyed(book.IntKey(1), "short", book.TierDOM)}, doc)
	r.Merge([]book.Candidate{book.Keyed(book.IntKey(1), "a much longer text", book.TierDOM)}, doc)
	r.Merge([]book.Candidate{book.Keyed(book.IntKey(1), "tiny", book.TierDOM)}, doc)

	rec, _ := doc.Get(book.IntKey(1))
	assert.Equal(t, "a much longer text", rec.Text)
}

func TestMergeSyntheticKeysAreSequential(t *testing.T) {
	doc := book.NewDocument("")
	New(nil).Merge([]book.Candidate{
		book.Unkeyed("first", book.TierDOM),
		book.Unkeyed("second", book.TierDOM),
		book.Unkeyed("third", book.TierDOM),
	}, doc)

	assert.Equal(t, []string{"1", "2", "3"}, keys(doc))
	rec, _ := doc.Get(book.IntKey(2))
	assert.Equal(t, "second", rec.Text)
}

func TestMergeSyntheticKeysFollowHighestKey(t *testing.T) {
	doc := book.NewDocument("")
	New(nil).Merge([]book.Candidate{
		book.Unkeyed("after", book.TierScript),
		book.Keyed(book.IntKey(7), "seven", book.TierNetworkJSON),
		book.Keyed(book.StringKey("toc"), "contents", book.TierNetworkJSON),
	}, doc)

	assert.Equal(t, []string{"7", "8", "toc"}, keys(doc))
}

func TestMergeNumericStringSharesIdentity(t *testing.T) {
	doc := book.NewDocument("")
	res := New(nil).Merge([]book.Candidate{
		book.Keyed(book.StringKey("3"), "dict form", book.TierNetworkJSON),
		book.Keyed(book.IntKey(3), "dom form", book.TierDOM),
	}, doc)

	assert.Equal(t, 1, doc.Len())
	rec, _ := doc.Get(book.IntKey(3))
	assert.Equal(t, "dict form", rec.Text)
	assert.Len(t, res.Conflicts, 1)
}

func TestMergeKeyUniquenessUnderRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tiers := []book.Tier{book.TierNetworkJSON, book.TierScript, book.TierDOM, book.TierRawHTML}

	for round := 0; round < 50; round++ {
		doc := book.NewDocument("")
		r := New(nil)
		wantKeys := map[string]bool{}
		var cands []book.Candidate
		for i := 0; i < 20; i++ {
			tier := tiers[rng.Intn(len(tiers))]
			text := fmt.Sprintf("text-%d-%d", round, i)
			if rng.Intn(3) == 0 {
				cands = append(cands, book.Unkeyed(text, tier))
				continue
			}
			k := book.IntKey(rng.Intn(8) + 1)
			wantKeys[k.ID()] = true
			cands = append(cands, book.Keyed(k, text, tier))
		}
		res := r.Merge(cands, doc)

		seen := map[string]bool{}
		for _, p := range doc.Pages() {
			require.False(t, seen[p.Key.ID()], "duplicate key %s", p.Key)
			seen[p.Key.ID()] = true
		}
		for k := range wantKeys {
			assert.True(t, seen[k], "keyed input %s missing", k)
		}
		for _, k := range res.Inserted {
			assert.True(t, seen[k.ID()])
		}
	}
}

func TestMergeMetadataNeverClobbers(t *testing.T) {
	doc := book.NewDocument("")
	r := New(nil)
	r.Merge([]book.Candidate{{Meta: &book.Metadata{Title: "Quantum Poker"}, Tier: book.TierNetworkJSON}}, doc)
	r.Merge([]book.Candidate{{Meta: &book.Metadata{Title: "Unknown", Author: "R. Feynman", ID: "B009SE1Z9E"}, Tier: book.TierDOM}}, doc)

	assert.Equal(t, "Quantum Poker", doc.Title)
	assert.Equal(t, "R. Feynman", doc.Author)
	assert.Equal(t, "B009SE1Z9E", doc.ID)
}

func TestMergeImagesDeduplicated(t *testing.T) {
	doc := book.NewDocument("")
	img := book.ImageAsset{Key: book.IntKey(1), Index: 0, FileName: "image_1_0.png"}
	res := New(nil).Merge([]book.Candidate{
		{Image: &img, Tier: book.TierDOM},
		{Image: &img, Tier: book.TierDOM},
		{Image: &book.ImageAsset{Key: book.IntKey(2), Index: 0, FileName: "image_1_0.png"}, Tier: book.TierDOM},
	}, doc)

	assert.Equal(t, 2, res.Images)
	assert.Len(t, doc.Images, 2)
	assert.Equal(t, 0, doc.Len())
}

func TestMergeSkipsEmptyText(t *testing.T) {
	doc := book.NewDocument("")
	res := New(nil).Merge([]book.Candidate{book.Unkeyed("   ", book.TierDOM), book.Keyed(book.IntKey(1), "", book.TierDOM)}, doc)
	assert.False(t, res.Changed())
	assert.Equal(t, 0, doc.Len())
}

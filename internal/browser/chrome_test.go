package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		markers []string
		want    bool
	}{
		{"lowercase marker", "https://read.amazon.com/service/metadata", []string{"metadata"}, true},
		{"uppercase marker", "https://read.amazon.com/service/metadata", []string{"MetaData"}, true},
		{"uppercase url", "https://read.amazon.com/API/Content", []string{"api/content"}, true},
		{"no match", "https://fls-na.amazon.com/1/batch", []string{"content"}, false},
		{"empty marker ignored", "https://read.amazon.com/x", []string{""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesAny(tt.url, tt.markers))
		})
	}
}

func TestChromeWantedWithoutMarkers(t *testing.T) {
	c := &Chrome{}
	assert.True(t, c.wanted("https://anything.example.com/"))

	c.match = []string{"Renderer"}
	assert.True(t, c.wanted("https://read.amazon.com/renderer/page"))
	assert.False(t, c.wanted("https://read.amazon.com/other"))
}

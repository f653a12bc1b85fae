package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcosevegrand/kindle-extract/internal/formatter"
)

// DetectionStrategy finds page text in a parsed view
type DetectionStrategy interface {
	Extract(doc *goquery.Document, opts *Options) (string, error)
	Name() string
}

// SelectorListStrategy tries CSS selectors in order. The first selector
// matching any element wins and the trimmed text of its matches is joined.
type SelectorListStrategy struct {
	Selectors        []string
	ExcludeSelectors []string
}

func (s *SelectorListStrategy) Name() string {
	return "selector_list"
}

func (s *SelectorListStrategy) Extract(doc *goquery.Document, opts *Options) (string, error) {
	if len(s.Selectors) == 0 {
		return "", fmt.Errorf("no CSS selectors configured")
	}

	for _, selector := range s.Selectors {
		content := doc.Find(selector)
		if content.Length() == 0 {
			continue
		}

		content = content.Clone()
		for _, exclude := range s.ExcludeSelectors {
			content.Find(exclude).Remove()
		}

		var parts []string
		content.Each(func(_ int, sel *goquery.Selection) {
			if text := formatter.SelectionText(sel); text != "" {
				parts = append(parts, text)
			}
		})
		return strings.Join(parts, "\n"), nil
	}

	return "", fmt.Errorf("no selector matched (%d tried)", len(s.Selectors))
}

// BodyTextStrategy returns the text of the whole body
type BodyTextStrategy struct{}

func (s *BodyTextStrategy) Name() string {
	return "body_text"
}

func (s *BodyTextStrategy) Extract(doc *goquery.Document, opts *Options) (string, error) {
	body := doc.Find("body")
	if body.Length() == 0 {
		return "", fmt.Errorf("no body element found")
	}
	body = body.Clone()
	body.Find("script, style, noscript, nav").Remove()
	return formatter.SelectionText(body), nil
}

// HybridStrategy tries multiple strategies in sequence until one succeeds
type HybridStrategy struct {
	Strategies []DetectionStrategy
}

func (s *HybridStrategy) Name() string {
	return "hybrid"
}

func (s *HybridStrategy) Extract(doc *goquery.Document, opts *Options) (string, error) {
	if len(s.Strategies) == 0 {
		return "", fmt.Errorf("no strategies configured for hybrid extraction")
	}

	var errors []string
	for _, strategy := range s.Strategies {
		content, err := strategy.Extract(doc, opts)
		if err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", strategy.Name(), err))
			continue
		}
		if len(content) > 0 {
			return content, nil
		}
		errors = append(errors, fmt.Sprintf("%s: empty", strategy.Name()))
	}

	return "", fmt.Errorf("all hybrid strategies failed: %s", strings.Join(errors, "; "))
}

// NewHybridStrategy creates the reader strategy: known containers first,
// then the whole body.
func NewHybridStrategy(selectors []string, excludeSelectors []string) *HybridStrategy {
	strategies := []DetectionStrategy{}

	if len(selectors) > 0 {
		strategies = append(strategies, &SelectorListStrategy{
			Selectors:        selectors,
			ExcludeSelectors: excludeSelectors,
		})
	}
	strategies = append(strategies, &BodyTextStrategy{})

	return &HybridStrategy{Strategies: strategies}
}

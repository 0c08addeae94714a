package predictor

import (
	"context"
	"net/url"
	"sort"
	"strings"
)

// RulePredictor is a reference NavigationPredictor built on simple URL
// structure heuristics. It exists so the engine runs without a model
// backend; production deployments plug in their own implementation.
type RulePredictor struct {
	// linkWeights maps path keywords to likelihood boosts
	linkWeights map[string]float64
}

// NewRulePredictor creates the reference rule-based predictor
func NewRulePredictor() *RulePredictor {
	return &RulePredictor{
		linkWeights: map[string]float64{
			"next":     0.25,
			"page":     0.15,
			"article":  0.15,
			"product":  0.1,
			"search":   0.1,
			"checkout": 0.2,
		},
	}
}

// Predict ranks candidate URLs found in the navigation context. Candidates
// are supplied under the "links" key as a comma-separated list; each is
// scored from a base likelihood plus keyword boosts, with same-host
// navigation favored.
func (p *RulePredictor) Predict(ctx context.Context, currentURL string, navigationContext map[string]string) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	links := strings.Split(navigationContext["links"], ",")
	current, _ := url.Parse(currentURL)

	predictions := make([]Prediction, 0, len(links))
	for _, link := range links {
		link = strings.TrimSpace(link)
		if link == "" {
			continue
		}

		probability := 0.5
		candidate, err := url.Parse(link)
		if err == nil && current != nil && candidate.Host == current.Host {
			probability += 0.15
		}
		lower := strings.ToLower(link)
		for keyword, weight := range p.linkWeights {
			if strings.Contains(lower, keyword) {
				probability += weight
			}
		}
		if probability > 0.99 {
			probability = 0.99
		}

		predictions = append(predictions, Prediction{URL: link, Probability: probability})
	}

	sort.Slice(predictions, func(i, j int) bool {
		return predictions[i].Probability > predictions[j].Probability
	})
	return predictions, nil
}

// Package predictor defines the navigation-prediction boundary. The engine
// consumes ranked URL predictions but never implements the ranking itself;
// rule-based, model-backed, or remote implementations are interchangeable.
package predictor

import "context"

// Prediction is a candidate next navigation with its estimated likelihood
type Prediction struct {
	URL         string  `json:"url"`
	Probability float64 `json:"probability"`
}

// NavigationPredictor ranks likely next navigations for the current page.
// Implementations may block (e.g. a remote model call); callers invoke it
// only from scheduler task bodies or request handlers, never from decision
// functions.
type NavigationPredictor interface {
	Predict(ctx context.Context, currentURL string, navigationContext map[string]string) ([]Prediction, error)
}

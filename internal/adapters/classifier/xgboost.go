// Package classifier loads the pre-trained XGBoost betting oracle.
package classifier

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitryikh/leaves"
)

// NumFeatures is the oracle's input: time, stake, distance and rank.
const NumFeatures = 4

// threshold splits the predicted back probability into back (1) and lay (0).
const threshold = 0.5

type predictor interface {
	PredictSingle(fvals []float64, nEstimators int) float64
	NFeatures() int
}

// Oracle implements ports.Classifier.
type Oracle struct {
	model predictor
}

// ErrJSONModel is returned for models saved in XGBoost's JSON format. Only the
// binary format can be read; convert with Booster.save_model("x.model").
var ErrJSONModel = errors.New("classifier: JSON models are not supported, convert to the binary format")

// Load reads an XGBoost binary model with its logistic transformation.
// A missing or unreadable model is fatal for the classifier strategy.
func Load(path string) (*Oracle, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, fmt.Errorf("classifier.Load: %q: %w", path, ErrJSONModel)
	}
	model, err := leaves.XGEnsembleFromFile(path, true)
	if err != nil {
		return nil, fmt.Errorf("classifier.Load: %q: %w", path, err)
	}
	return newOracle(model)
}

func newOracle(model predictor) (*Oracle, error) {
	if n := model.NFeatures(); n != NumFeatures {
		return nil, fmt.Errorf("classifier: model expects %d features, want %d", n, NumFeatures)
	}
	return &Oracle{model: model}, nil
}

// Predict answers 1 (back) or 0 (lay) for (time, stake, distance, rank).
func (o *Oracle) Predict(features []float64) (int, error) {
	if len(features) != NumFeatures {
		return 0, fmt.Errorf("classifier.Predict: got %d features, want %d", len(features), NumFeatures)
	}
	if o.model.PredictSingle(features, 0) > threshold {
		return 1, nil
	}
	return 0, nil
}

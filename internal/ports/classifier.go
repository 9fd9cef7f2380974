package ports

// Classifier is a pre-trained binary oracle. For betting it receives
// (time, stake, distance, rank) and answers 1 for back, 0 for lay.
type Classifier interface {
	Predict(features []float64) (int, error)
}

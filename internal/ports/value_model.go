package ports

import "github.com/alejandrodnm/betpool/internal/domain"

// ValueModel is a trainable action-value function with its own target copy.
// Implementations own their optimizer state and are used by one agent only.
type ValueModel interface {
	// Predict returns one Q-value per action for state.
	Predict(state []float64) ([]float64, error)

	// TrainStep runs one optimizer step over batch and returns the loss.
	TrainStep(batch []domain.Transition) (float64, error)

	// SyncTarget hard-copies the online weights into the target network.
	SyncTarget()

	// Save and Load persist the model at an opaque path.
	Save(path string) error
	Load(path string) error
}

package ports

// OddsSource supplies model odds indexed by competitor. A value equal to the
// market's MaxOdds means the competitor should be quoted as a lay.
type OddsSource interface {
	// ExAnte returns the pre-race odds.
	ExAnte() ([]float64, error)

	// InPlay returns the odds implied by the race at timestep.
	InPlay(timestep int) ([]float64, error)
}

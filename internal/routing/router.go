package routing

// Router derives the ordered approval chain for an invoice from static tier
// configuration. Chain is a pure function: identical inputs always yield the
// identical chain.
type Router struct {
	cfg ChainConfig
}

// NewRouter validates the configuration once; invalid tier lists are fatal.
func NewRouter(cfg ChainConfig) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Router{cfg: cfg}, nil
}

// Chain walks the tier list for the department (or the default list) lowest
// ceiling first and includes every tier up to and including the first whose
// ceiling covers the amount. When no ceiling covers the amount the highest
// tier still terminates the chain as a ceiling stop.
func (r *Router) Chain(amount float64, department string) ([]Tier, error) {
	tiers := r.cfg.tiersFor(department)
	if len(tiers) == 0 {
		return nil, ErrEmptyChain
	}
	chain := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		chain = append(chain, t)
		if t.Covers(amount) {
			return chain, nil
		}
	}
	// No tier covers the amount; the highest-authority tier already closes
	// the chain.
	return chain, nil
}

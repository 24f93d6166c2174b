package workflow

import (
	"context"
	"time"
)

// SLAAgingBucket counts active approval stages by remaining business time
// until their SLA deadline.
type SLAAgingBucket struct {
	Breached int `json:"breached"`
	Under1H  int `json:"under_1h"`
	Under4H  int `json:"under_4h"`
	Under8H  int `json:"under_8h"`
	Beyond8H int `json:"beyond_8h"`
	Total    int `json:"total"`
}

// SLAAging returns an aging summary of all active stages as of the given
// instant. Stages without a fixed deadline are skipped.
func (s *Service) SLAAging(ctx context.Context, asOf time.Time) (SLAAgingBucket, error) {
	active, err := s.repo.ListAllActive(ctx)
	if err != nil {
		return SLAAgingBucket{}, err
	}

	bucket := SLAAgingBucket{}
	engine := s.slacalc.Engine()

	for _, a := range active {
		if a.SLADeadline == nil {
			continue
		}
		bucket.Total++

		if !a.SLADeadline.After(asOf) {
			bucket.Breached++
			continue
		}
		remaining, err := engine.BusinessMinutesBetween(asOf, *a.SLADeadline)
		if err != nil {
			return SLAAgingBucket{}, err
		}

		if remaining <= 60 {
			bucket.Under1H++
		} else if remaining <= 240 {
			bucket.Under4H++
		} else if remaining <= 480 {
			bucket.Under8H++
		} else {
			bucket.Beyond8H++
		}
	}
	return bucket, nil
}

package detector

import (
	"math/rand"
	"time"

	"github.com/arboretum/alert-engine/internal/model"
)

// NewWithRand exposes the seeded constructor to tests.
func NewWithRand(sink Sink, ttl time.Duration, rng *rand.Rand) *Detector {
	return newWithRand(sink, ttl, rng)
}

// Scan exposes one synthesis pass to tests.
func (d *Detector) Scan() (*model.Opportunity, error) { return d.scan() }

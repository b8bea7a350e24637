package simulation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/models"
	"github.com/stitts-dev/tourney-sim-dashboard/internal/providers"
)

// ErrSimulationNotFound covers both malformed ids and ids the backend does not know
var ErrSimulationNotFound = errors.New("simulation not found")

const maxIDLength = 128

// Fetcher reads stored simulations
type Fetcher interface {
	GetSimulation(ctx context.Context, id string) (*models.SimulationResponse, error)
}

// Lookup resolves shareable simulation ids
type Lookup struct {
	backend Fetcher
}

// NewLookup creates a lookup backed by f
func NewLookup(f Fetcher) *Lookup {
	return &Lookup{backend: f}
}

// ValidID reports whether id could name a stored simulation
func ValidID(id string) bool {
	if strings.TrimSpace(id) == "" || len(id) > maxIDLength {
		return false
	}
	if strings.ContainsAny(id, `/\?#`) {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Get fetches a simulation. Malformed ids are rejected without a request.
// Transport and server failures are returned unchanged.
func (l *Lookup) Get(ctx context.Context, id string) (*models.SimulationResponse, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: malformed id %q", ErrSimulationNotFound, id)
	}

	resp, err := l.backend.GetSimulation(ctx, id)
	if err != nil {
		// the backend answers 422 for ids it cannot parse
		if providers.IsNotFound(err) || providers.IsStatus(err, http.StatusUnprocessableEntity) {
			return nil, fmt.Errorf("%w: %s", ErrSimulationNotFound, id)
		}
		return nil, err
	}
	if resp == nil || resp.SimulationID == "" {
		return nil, fmt.Errorf("%w: %s", ErrSimulationNotFound, id)
	}
	return resp, nil
}

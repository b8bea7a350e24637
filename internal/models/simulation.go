// Package models holds the wire types exchanged with the tournament
// simulation backend.
package models

// SimulationRequest is the body of POST /simulate-tournament
type SimulationRequest struct {
	Teams []string `json:"teams"`
	NRuns int      `json:"n_runs"`
}

// TeamProbability is one team's aggregated outcome over all Monte Carlo runs.
// The optional fields are only sent when the backend kept raw counts, so a nil
// pointer means "unknown" and must never be read as zero.
type TeamProbability struct {
	Team      string   `json:"team"`
	WinProb   float64  `json:"win_prob"`
	FinalProb *float64 `json:"final_prob,omitempty"`
	SemiProb  *float64 `json:"semi_prob,omitempty"`
	Wins      *int     `json:"wins,omitempty"`
	Finals    *int     `json:"finals,omitempty"`
	Semis     *int     `json:"semis,omitempty"`
}

// SimulationResponse is returned by both POST /simulate-tournament and GET /simulation/{id}
type SimulationResponse struct {
	SimulationID string            `json:"simulation_id"`
	Results      []TeamProbability `json:"results"`
}

// Teams returns the team names in backend order
func (r *SimulationResponse) Teams() []string {
	teams := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		teams = append(teams, res.Team)
	}
	return teams
}

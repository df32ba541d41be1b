package engine

import (
	"context"
	"strings"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// Gate decides whether an equivalent, still-open incident already
// exists for a fault candidate.
type Gate struct {
	incidents ports.IncidentStore
	closed    map[string]struct{}
	obs       ports.Observability
}

// DefaultClosedStatuses are the incident states that no longer block a
// new registration.
var DefaultClosedStatuses = []string{"CLOSED", "RESOLVED", "REJECTED"}

// NewGate builds a gate treating the given statuses (case-insensitive)
// as closed. A nil slice selects DefaultClosedStatuses.
func NewGate(incidents ports.IncidentStore, closedStatuses []string, obs ports.Observability) *Gate {
	if closedStatuses == nil {
		closedStatuses = DefaultClosedStatuses
	}
	closed := make(map[string]struct{}, len(closedStatuses))
	for _, s := range closedStatuses {
		closed[strings.ToUpper(s)] = struct{}{}
	}
	return &Gate{incidents: incidents, closed: closed, obs: obs}
}

// IsDuplicate looks up the latest persisted fault for the candidate's
// (unit, tag) and its linked incident. No prior fault, no linked
// incident, or a closed incident all mean "not a duplicate". Lookup
// errors fail open: the bias is toward over-alerting rather than
// silently dropping a real fault.
func (g *Gate) IsDuplicate(ctx context.Context, c domain.FaultCandidate) bool {
	latest, err := g.incidents.LatestFault(ctx, c.UnitID, c.Tag)
	if err != nil {
		g.obs.Error("dedup_lookup_failed", err,
			ports.Field{Key: "unit", Value: c.UnitID},
			ports.Field{Key: "tag", Value: c.Tag})
		return false
	}
	if latest == nil || latest.Incident == nil {
		return false
	}
	if _, ok := g.closed[strings.ToUpper(latest.Incident.Status)]; ok {
		return false
	}

	// RecordSuppression owns the suppression counter; bumping it here
	// too would double-count.
	g.obs.RecordSuppression(c, latest.Incident.ID, latest.Incident.Status)
	return true
}

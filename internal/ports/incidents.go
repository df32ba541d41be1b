package ports

import (
	"context"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
)

// Incident is the user-facing complaint record linked to a fault row.
type Incident struct {
	ID     string
	Status string
}

// FaultRecord is one persisted fault observation and its linked
// incident, if any.
type FaultRecord struct {
	ID       int64
	UnitID   string
	Tag      string
	Incident *Incident
}

// IncidentStore is the complaint persistence collaborator.
type IncidentStore interface {
	// LatestFault returns the most recent fault record for
	// (unit, tag), or nil when none exists.
	LatestFault(ctx context.Context, unitID, tag string) (*FaultRecord, error)

	// Persist writes a fault record and its incident atomically and
	// returns the allocated incident id.
	Persist(ctx context.Context, c domain.FaultCandidate) (string, error)
}

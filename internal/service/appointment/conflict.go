package appointment

import (
	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
)

// DetectConflicts returns the ids of the active appointments in existing
// that belong to providerID on date and overlap w. excludeID, when set, is
// skipped so an appointment never conflicts with itself.
func DetectConflicts(existing []*model.Appointment, providerID uuid.UUID, date model.Date, w model.Window, excludeID *uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range existing {
		if a.ProviderID != providerID || !a.Date.Equal(date) || !a.Status.IsActive() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Window().Overlaps(w) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

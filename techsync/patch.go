package techsync

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
)

// cachePatchFor builds the optimistic mutation a queued action implies for
// the cached detail. The same patch is applied at enqueue time (so screens
// update immediately) and again when the action is delivered by a later
// pass on a restarted process. Checklist patches set an absolute value, so
// replaying them is idempotent.
func cachePatchFor(kind string, payloadJSON []byte) func(*models.WorkOrderDetail) {
	switch kind {
	case models.ActionKindStatusUpdate:
		var p StatusUpdatePayload
		if err := json.Unmarshal(payloadJSON, &p); err != nil {
			return nil
		}
		return func(d *models.WorkOrderDetail) {
			d.Status = p.Status
		}
	case models.ActionKindChecklistUpdate:
		var p ChecklistUpdatePayload
		if err := json.Unmarshal(payloadJSON, &p); err != nil {
			return nil
		}
		return func(d *models.WorkOrderDetail) {
			for i := range d.Checklist {
				if d.Checklist[i].Index == p.ItemIndex {
					d.Checklist[i].Done = p.Done
					return
				}
			}
		}
	case models.ActionKindObservationAdd:
		var p ObservationAddPayload
		if err := json.Unmarshal(payloadJSON, &p); err != nil {
			return nil
		}
		return func(d *models.WorkOrderDetail) {
			d.Observations = p.Text
		}
	case models.ActionKindPhotoAdd:
		var p PhotoAddPayload
		if err := json.Unmarshal(payloadJSON, &p); err != nil {
			return nil
		}
		return func(d *models.WorkOrderDetail) {
			// URL stays empty until the next online fetch returns the
			// stored location.
			d.Photos = append(d.Photos, models.WorkOrderPhoto{
				Caption: p.Caption,
				TakenAt: time.Now().UTC(),
			})
		}
	case models.ActionKindContractSign:
		var p ContractSignPayload
		if err := json.Unmarshal(payloadJSON, &p); err != nil {
			return nil
		}
		return func(d *models.WorkOrderDetail) {
			now := time.Now().UTC()
			d.SignedAt = &now
			d.SignedBy = p.SignedBy
		}
	}
	return nil
}

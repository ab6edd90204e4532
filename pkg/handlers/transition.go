package handlers

import (
	"github.com/arnavshah/carelink-api-go/pkg/apierror"
	"github.com/arnavshah/carelink-api-go/pkg/metrics"
	"gorm.io/gorm"
)

// transition writes status=to only while the row is still in from. Zero
// affected rows means another request moved it first.
func transition[S ~string](tx *gorm.DB, model any, entity, id string, from, to S, extra map[string]any) error {
	updates := map[string]any{"status": string(to)}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(model).Where("id = ? AND status = ?", id, string(from)).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierror.Conflict("The " + entity + " was modified by another request; reload and retry")
	}
	metrics.Transitions.WithLabelValues(entity, string(to)).Inc()
	return nil
}

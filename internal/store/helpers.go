package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// scanScript scans a ScriptRecord from sql.Rows.
func scanScript(rows *sql.Rows) (models.ScriptRecord, error) {
	var r models.ScriptRecord
	var duration, goal string
	err := rows.Scan(&r.ID, &r.Expert, &r.Audience, &r.Campaign, &duration, &goal, &r.Markdown, &r.CreatedAt)
	if err != nil {
		return r, fmt.Errorf("scan script failed: %w", err)
	}
	r.Duration = models.Duration(duration)
	r.Goal = models.Goal(goal)
	return r, nil
}

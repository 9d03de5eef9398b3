package backup

import (
	"fmt"
	"os"
)

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []Info `json:"deleted"`
	Kept    int    `json:"kept"`
}

// Prune removes old backups, keeping only the most recent keep backups.
// keep == 0 retains everything.
func (m *Manager) Prune(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	backups, err := m.List()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}

	if keep == 0 || len(backups) <= keep {
		result.Kept = len(backups)
		return result, nil
	}

	// Backups are sorted newest first; delete everything past the keep count.
	toDelete := backups[keep:]
	result.Kept = keep

	for _, b := range toDelete {
		if err := os.Remove(b.Path); err != nil {
			return nil, fmt.Errorf("failed to delete backup %s: %w", b.Name, err)
		}
		result.Deleted = append(result.Deleted, b)
	}

	return result, nil
}

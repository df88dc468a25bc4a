package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zkvoting/eligibility/types"
)

// LoadRollFile reads and validates a plaintext authorized-voter roll from a
// JSON file holding a list of records {id, first_name, last_name, age}.
// Malformed records are rejected, not skipped: a roll that cannot be fully
// validated must not produce a partial registry.
func LoadRollFile(path string) ([]types.RollEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roll file: %w", err)
	}
	var roll []types.RollEntry
	if err := json.Unmarshal(data, &roll); err != nil {
		return nil, fmt.Errorf("decode roll file: %w", err)
	}
	if len(roll) == 0 {
		return nil, fmt.Errorf("roll file contains no entries")
	}
	seen := make(map[string]bool, len(roll))
	for i, entry := range roll {
		if err := entry.Identity().Validate(); err != nil {
			return nil, fmt.Errorf("roll entry %d: %w", i, err)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("roll entry %d: duplicate identifier", i)
		}
		seen[entry.ID] = true
	}
	return roll, nil
}

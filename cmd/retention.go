package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// SweepResult lists what a retention sweep kept and removed
type SweepResult struct {
	Kept    []string
	Removed []string
}

// SweepArchives removes all but the keep newest archives in dir. Archive
// names carry a fixed-width timestamp, so lexicographic order is age order.
// A failed removal is logged and the sweep continues with the remaining
// candidates; all failures are returned joined.
func SweepArchives(dir, prefix string, keep int, logger *slog.Logger) (SweepResult, error) {
	var result SweepResult

	entries, err := os.ReadDir(dir)
	if err != nil {
		return result, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var archives []string
	for _, entry := range entries {
		if isArchiveName(entry.Name(), prefix) {
			archives = append(archives, entry.Name())
		}
	}
	sort.Strings(archives)

	if len(archives) <= keep {
		result.Kept = archives
		return result, nil
	}

	candidates := archives[:len(archives)-keep]
	result.Kept = archives[len(archives)-keep:]

	var errs []error
	for _, name := range candidates {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			logger.Error(fmt.Sprintf("❌ Failed to remove old archive %s (candidates: %v): %v", name, candidates, err))
			errs = append(errs, err)
			result.Kept = append(result.Kept, name)
			continue
		}
		logger.Debug(fmt.Sprintf("🗑️  Removed old archive %s", name))
		result.Removed = append(result.Removed, name)
	}
	sort.Strings(result.Kept)

	return result, errors.Join(errs...)
}

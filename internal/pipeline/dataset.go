package pipeline

import (
	"fmt"
	"path/filepath"
)

// baseURL is the public archive of monthly standard-rated dumps.
const baseURL = "https://database.lichess.org/standard"

// Dataset describes one monthly dump.
type Dataset struct {
	// ID is the stable dataset identifier, "YYYY-MM".
	ID string

	// URL is the remote location of the compressed dump.
	URL string

	// TempPath is the local staging path, deleted after commit.
	TempPath string
}

// DatasetsForYear returns the twelve monthly descriptors of year in
// ascending chronological order, staged under tempDir.
func DatasetsForYear(year int, tempDir string) []Dataset {
	datasets := make([]Dataset, 0, 12)
	for month := 1; month <= 12; month++ {
		id := fmt.Sprintf("%04d-%02d", year, month)
		datasets = append(datasets, Dataset{
			ID:       id,
			URL:      fmt.Sprintf("%s/lichess_db_standard_rated_%s.pgn.zst", baseURL, id),
			TempPath: filepath.Join(tempDir, id+".zst"),
		})
	}
	return datasets
}

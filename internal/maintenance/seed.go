// Package maintenance holds the one-off data jobs run from the command line:
// seeding companies, balancing employees across them, backfilling channels
// and checking the schema.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pysugar/commshub/internal/db/models"
	"github.com/pysugar/commshub/internal/logging"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document read by seed-companies.
type SeedFile struct {
	Companies []models.Company `yaml:"companies"`
}

// LoadSeedFile parses a companies seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &f, nil
}

// CompanyStore is the subset of the employee store used for seeding.
type CompanyStore interface {
	UpsertCompanyByName(ctx context.Context, c *models.Company) (bool, error)
}

// SeedResult summarizes a seed run.
type SeedResult struct {
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Errors  []SeedError `json:"errors,omitempty"`
}

// SeedError records a company that could not be written.
type SeedError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// SeedCompanies upserts every company by name. A failing row is recorded and
// the run continues.
func SeedCompanies(ctx context.Context, store CompanyStore, companies []models.Company, logger *logging.Logger) *SeedResult {
	result := &SeedResult{}
	for i := range companies {
		c := companies[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			result.Errors = append(result.Errors, SeedError{Name: fmt.Sprintf("#%d", i), Error: "name is required"})
			continue
		}
		created, err := store.UpsertCompanyByName(ctx, &c)
		if err != nil {
			result.Errors = append(result.Errors, SeedError{Name: c.Name, Error: err.Error()})
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("errors", len(result.Errors)).
		Msg("companies seeded")
	return result
}

package maintenance

import (
	"context"
	"errors"

	"github.com/pysugar/commshub/internal/db/models"
	"github.com/pysugar/commshub/internal/logging"
)

// ErrNoCompanies is returned when there is nothing to assign employees to.
var ErrNoCompanies = errors.New("no companies to assign employees to")

// AssignmentStore is the subset of the employee store used for balancing.
type AssignmentStore interface {
	ListCompanies(ctx context.Context) ([]models.Company, error)
	CountEmployeesByCompany(ctx context.Context) (map[string]int, error)
	ListEmployeesWithoutCompany(ctx context.Context) ([]models.Employee, error)
	AssignCompany(ctx context.Context, employeeID, companyID string) error
}

// Assignment is one employee placed in a company.
type Assignment struct {
	EmployeeID string `json:"employee_id"`
	CompanyID  string `json:"company_id"`
}

// AssignCompaniesRoundRobin gives every employee without a company the
// company that currently has the fewest employees, starting from the counts
// already in the database. Ties go to the company listed first (by name).
func AssignCompaniesRoundRobin(ctx context.Context, store AssignmentStore, logger *logging.Logger) ([]Assignment, error) {
	companies, err := store.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, ErrNoCompanies
	}
	counts, err := store.CountEmployeesByCompany(ctx)
	if err != nil {
		return nil, err
	}
	employees, err := store.ListEmployeesWithoutCompany(ctx)
	if err != nil {
		return nil, err
	}

	assignments := make([]Assignment, 0, len(employees))
	for _, e := range employees {
		if err := ctx.Err(); err != nil {
			return assignments, err
		}
		target := companies[0].ID
		for _, c := range companies[1:] {
			if counts[c.ID] < counts[target] {
				target = c.ID
			}
		}
		if err := store.AssignCompany(ctx, e.ID, target); err != nil {
			return assignments, err
		}
		counts[target]++
		assignments = append(assignments, Assignment{EmployeeID: e.ID, CompanyID: target})
	}

	logger.Info().Int("assigned", len(assignments)).Int("companies", len(companies)).Msg("employees assigned to companies")
	return assignments, nil
}

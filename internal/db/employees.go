package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pysugar/commshub/internal/db/models"
	"gorm.io/gorm"
)

// EmployeeStore reads the employee directory and company tables.
type EmployeeStore struct {
	db *gorm.DB
}

// NewEmployeeStore creates an EmployeeStore.
func NewEmployeeStore(db *gorm.DB) *EmployeeStore {
	return &EmployeeStore{db: db}
}

// ListEmployees returns every employee with its company preloaded.
func (s *EmployeeStore) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	var employees []models.Employee
	if err := s.db.WithContext(ctx).Preload("Company").Order("id ASC").Find(&employees).Error; err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	return employees, nil
}

// GetEmployee loads one employee by id.
func (s *EmployeeStore) GetEmployee(ctx context.Context, id string) (*models.Employee, error) {
	var e models.Employee
	if err := s.db.WithContext(ctx).Preload("Company").First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load employee %s: %w", id, err)
	}
	return &e, nil
}

// CreateEmployee inserts an employee, assigning an ID when missing.
func (s *EmployeeStore) CreateEmployee(ctx context.Context, e *models.Employee) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Omit("Company").Create(e).Error; err != nil {
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

// SetEmployeeDriveFolder records the Drive folder created for an employee.
func (s *EmployeeStore) SetEmployeeDriveFolder(ctx context.Context, employeeID, folderID string) error {
	res := s.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", employeeID).
		Update("drive_folder_id", folderID)
	if res.Error != nil {
		return fmt.Errorf("failed to set drive folder for %s: %w", employeeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEmployeesWithoutCompany returns employees not yet assigned to a company.
func (s *EmployeeStore) ListEmployeesWithoutCompany(ctx context.Context) ([]models.Employee, error) {
	var employees []models.Employee
	err := s.db.WithContext(ctx).
		Where("company_id = ? OR company_id IS NULL", "").
		Order("id ASC").
		Find(&employees).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned employees: %w", err)
	}
	return employees, nil
}

// AssignCompany sets an employee's company.
func (s *EmployeeStore) AssignCompany(ctx context.Context, employeeID, companyID string) error {
	err := s.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", employeeID).
		Update("company_id", companyID).Error
	if err != nil {
		return fmt.Errorf("failed to assign company to %s: %w", employeeID, err)
	}
	return nil
}

// ListEmployeesWithoutChannel returns employees with no preferred channel.
func (s *EmployeeStore) ListEmployeesWithoutChannel(ctx context.Context) ([]models.Employee, error) {
	var employees []models.Employee
	err := s.db.WithContext(ctx).
		Where("preferred_channel = ? OR preferred_channel IS NULL", "").
		Order("id ASC").
		Find(&employees).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list employees without channel: %w", err)
	}
	return employees, nil
}

// SetPreferredChannel sets an employee's preferred channel.
func (s *EmployeeStore) SetPreferredChannel(ctx context.Context, employeeID string, channel models.Channel) error {
	err := s.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", employeeID).
		Update("preferred_channel", channel).Error
	if err != nil {
		return fmt.Errorf("failed to set channel for %s: %w", employeeID, err)
	}
	return nil
}

// ListCompanies returns all companies ordered by name.
func (s *EmployeeStore) ListCompanies(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&companies).Error; err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// UpsertCompanyByName inserts the company or updates the existing row with the
// same name. It reports whether a new row was created.
func (s *EmployeeStore) UpsertCompanyByName(ctx context.Context, c *models.Company) (bool, error) {
	var existing models.Company
	err := s.db.WithContext(ctx).Where("name = ?", c.Name).First(&existing).Error
	switch {
	case err == nil:
		c.ID = existing.ID
		err = s.db.WithContext(ctx).Model(&existing).
			Select("industry", "country", "updated_at").
			Updates(models.Company{Industry: c.Industry, Country: c.Country}).Error
		if err != nil {
			return false, fmt.Errorf("failed to update company %s: %w", c.Name, err)
		}
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
			return false, fmt.Errorf("failed to create company %s: %w", c.Name, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("failed to look up company %s: %w", c.Name, err)
	}
}

// CountEmployeesByCompany returns the number of employees per company id.
// Companies without employees are present with a zero count.
func (s *EmployeeStore) CountEmployeesByCompany(ctx context.Context) (map[string]int, error) {
	companies, err := s.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(companies))
	for _, c := range companies {
		counts[c.ID] = 0
	}

	var rows []struct {
		CompanyID string
		Total     int
	}
	err = s.db.WithContext(ctx).Model(&models.Employee{}).
		Select("company_id, COUNT(*) AS total").
		Where("company_id <> ''").
		Group("company_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count employees: %w", err)
	}
	for _, r := range rows {
		if _, ok := counts[r.CompanyID]; ok {
			counts[r.CompanyID] = r.Total
		}
	}
	return counts, nil
}

// GetMessagingConfig returns the active webhook settings for a tenant channel.
func (s *EmployeeStore) GetMessagingConfig(ctx context.Context, companyID string, channel models.Channel) (*models.MessagingConfig, error) {
	var mc models.MessagingConfig
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND channel = ? AND is_active = ?", companyID, channel, true).
		First(&mc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load messaging config: %w", err)
	}
	return &mc, nil
}

// SaveMessagingConfig creates or replaces a tenant channel config.
func (s *EmployeeStore) SaveMessagingConfig(ctx context.Context, mc *models.MessagingConfig) error {
	if err := s.db.WithContext(ctx).Save(mc).Error; err != nil {
		return fmt.Errorf("failed to save messaging config: %w", err)
	}
	return nil
}

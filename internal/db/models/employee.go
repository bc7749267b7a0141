package models

import "time"

// Company is a tenant whose employees receive communications.
type Company struct {
	ID        string    `gorm:"primaryKey" json:"id" yaml:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name" yaml:"name"`
	Industry  string    `json:"industry,omitempty" yaml:"industry"`
	Country   string    `json:"country,omitempty" yaml:"country"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

func (Company) TableName() string {
	return "companies"
}

// Employee is a directory entry. Reports join log recipients against it.
type Employee struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	CompanyID        string    `gorm:"index" json:"company_id"`
	Company          *Company  `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	TelegramChatID   string    `json:"telegram_chat_id,omitempty"`
	PreferredChannel Channel   `json:"preferred_channel,omitempty"`
	Department       string    `gorm:"index" json:"department"`
	Region           string    `json:"region"`
	Level            string    `json:"level"`
	WorkMode         string    `json:"work_mode"`
	ContractType     string    `json:"contract_type"`
	Position         string    `json:"position"`
	DriveFolderID    string    `json:"drive_folder_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Employee) TableName() string {
	return "employees"
}

// MessagingConfig holds a tenant's webhook settings for one channel.
type MessagingConfig struct {
	CompanyID     string    `gorm:"primaryKey" json:"company_id"`
	Channel       Channel   `gorm:"primaryKey" json:"channel"`
	VerifyToken   string    `json:"-"`
	PhoneNumberID string    `json:"phone_number_id,omitempty"`
	IsActive      bool      `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (MessagingConfig) TableName() string {
	return "messaging_configs"
}

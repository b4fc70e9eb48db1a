package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table. Name and email hold ciphertext;
// the lookup hash column carries the unique index that enforces one account
// per address.
type Account struct {
	AccountID       string    `gorm:"type:uuid;primaryKey"`
	EncryptedName   string    `gorm:"not null"`
	EncryptedEmail  string    `gorm:"not null"`
	EmailLookupHash string    `gorm:"not null;index:uniq_accounts_email_hash,unique"`
	PasswordHash    string    `gorm:"not null"`
	Role            string    `gorm:"not null;default:user"`
	Blocked         bool      `gorm:"not null;default:false"`
	Superadmin      bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// Slot mirrors the slots table. Times are stored as UTC instants.
type Slot struct {
	SlotID             string     `gorm:"type:uuid;primaryKey"`
	Title              string     `gorm:"not null"`
	Description        string     `gorm:"not null"`
	StartTime          time.Time  `gorm:"not null;index:idx_slots_start_time"`
	EndTime            time.Time  `gorm:"not null"`
	Capacity           int        `gorm:"not null"`
	WeatherRating      *int       `gorm:""`
	WeatherWarning     bool       `gorm:"not null;default:false"`
	ForecastAvailable  bool       `gorm:"not null;default:false"`
	WeatherRefreshedAt *time.Time `gorm:""`
	CreatedAt          time.Time  `gorm:"not null"`
	UpdatedAt          time.Time  `gorm:"not null"`
}

func (Slot) TableName() string { return "slots" }

func (slot *Slot) BeforeCreate(tx *gorm.DB) error {
	if slot.SlotID == "" {
		slot.SlotID = uuid.NewString()
	}
	return nil
}

// Booking mirrors the bookings table. The composite primary key is the
// database-level guarantee behind the one-booking-per-account-per-slot rule.
type Booking struct {
	AccountID string    `gorm:"type:uuid;primaryKey"`
	SlotID    string    `gorm:"type:uuid;primaryKey;index:idx_bookings_slot"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

// Configuration mirrors the singleton configuration row.
type Configuration struct {
	ID                 int       `gorm:"primaryKey"`
	Latitude           float64   `gorm:"not null"`
	Longitude          float64   `gorm:"not null"`
	Timezone           string    `gorm:"not null"`
	WeatherThreshold   int       `gorm:"not null"`
	DefaultOpeningTime string    `gorm:"not null"`
	DefaultClosingTime string    `gorm:"not null"`
	MaxBookingsPerSlot int       `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (Configuration) TableName() string { return "configuration" }

// AuditEntry mirrors the append-only audit_entries table.
type AuditEntry struct {
	EntryID   string         `gorm:"type:uuid;primaryKey"`
	ActorID   string         `gorm:"type:uuid;not null;index:idx_audit_actor_created,priority:1"`
	Action    string         `gorm:"not null"`
	Subject   string         `gorm:"not null"`
	Detail    datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null;index:idx_audit_actor_created,priority:2"`
}

func (AuditEntry) TableName() string { return "audit_entries" }

func (entry *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AccountID identifies a registered account.
type AccountID struct {
	value string
}

// SlotID identifies an observation slot.
type SlotID struct {
	value string
}

// Role defines the account privilege level.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// EmailAddress is a validated, lower-cased email address.
type EmailAddress struct {
	value string
}

// Password is a plaintext credential that satisfied the strength rules.
// It exists only in flight; stores only ever see the hash.
type Password struct {
	value string
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	hour   int
	minute int
}

// AuditDetail stores the JSON payload of an audit entry.
type AuditDetail struct {
	value string
}

var (
	emailPattern    = regexp.MustCompile(`^[\w\-.]+@([\w-]+\.)+[\w-]{2,}$`)
	passwordPattern = regexp.MustCompile(`^.{8,30}$`)
)

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id AccountID) IsZero() bool {
	return id.value == ""
}

// NewSlotID validates and normalizes a slot id.
func NewSlotID(raw string) (SlotID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SlotID{}, fmt.Errorf("%w: empty value", ErrInvalidSlotID)
	}
	return SlotID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id SlotID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id SlotID) IsZero() bool {
	return id.value == ""
}

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperadmin:
		return RoleSuperadmin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// String returns the role name.
func (role Role) String() string {
	return string(role)
}

func (role Role) rank() int {
	switch role {
	case RoleAdmin:
		return 1
	case RoleSuperadmin:
		return 2
	default:
		return 0
	}
}

// NewEmailAddress validates and normalizes an email address.
func NewEmailAddress(raw string) (EmailAddress, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(normalized) {
		return EmailAddress{}, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return EmailAddress{value: normalized}, nil
}

// String returns the normalized address.
func (email EmailAddress) String() string {
	return email.value
}

// NewPassword validates credential strength: 8-30 characters with at least
// one upper-case letter, one lower-case letter, and one digit.
func NewPassword(raw string) (Password, error) {
	if !passwordPattern.MatchString(raw) || !containsRequiredClasses(raw) {
		return Password{}, ErrWeakPassword
	}
	return Password{value: raw}, nil
}

// String returns the plaintext credential.
func (password Password) String() string {
	return password.value
}

func containsRequiredClasses(raw string) bool {
	var hasUpper, hasLower, hasDigit bool
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

// NewTimeOfDay validates a wall-clock time.
func NewTimeOfDay(hour int, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %02d:%02d", ErrInvalidTimeOfDay, hour, minute)
	}
	return TimeOfDay{hour: hour, minute: minute}, nil
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	return TimeOfDay{hour: parsed.Hour(), minute: parsed.Minute()}, nil
}

// Hour returns the hour component.
func (timeOfDay TimeOfDay) Hour() int {
	return timeOfDay.hour
}

// Minute returns the minute component.
func (timeOfDay TimeOfDay) Minute() int {
	return timeOfDay.minute
}

// MinutesFromMidnight returns the offset since midnight.
func (timeOfDay TimeOfDay) MinutesFromMidnight() int {
	return timeOfDay.hour*60 + timeOfDay.minute
}

// String renders "HH:MM".
func (timeOfDay TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", timeOfDay.hour, timeOfDay.minute)
}

// On combines the wall-clock time with a calendar date in the given location.
func (timeOfDay TimeOfDay) On(date time.Time, location *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), timeOfDay.hour, timeOfDay.minute, 0, 0, location)
}

// NewAuditDetail validates an audit payload (defaulting to "{}" when empty).
func NewAuditDetail(raw string) (AuditDetail, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return AuditDetail{}, fmt.Errorf("%w: must be valid json", ErrInvalidAuditDetail)
	}
	return AuditDetail{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (detail AuditDetail) String() string {
	return detail.value
}

// Account is a stored identity. Name and email are ciphertext; the lookup
// hash is the deterministic fingerprint of the normalized address that
// enforces uniqueness since the cipher is non-deterministic.
type Account struct {
	ID              AccountID
	EncryptedName   string
	EncryptedEmail  string
	EmailLookupHash string
	PasswordHash    string
	Role            Role
	Blocked         bool
	Superadmin      bool
}

// Slot is a scheduled observation window with a booking capacity.
// Times are UTC instants. A nil WeatherRating means the rating is unknown.
type Slot struct {
	ID                 SlotID
	Title              string
	Description        string
	StartTime          time.Time
	EndTime            time.Time
	Capacity           int
	WeatherRating      *int
	WeatherWarning     bool
	ForecastAvailable  bool
	WeatherRefreshedAt time.Time
}

// Booking links an account to a slot.
type Booking struct {
	AccountID AccountID
	SlotID    SlotID
	CreatedAt time.Time
}

// Configuration holds the singleton deployment settings.
type Configuration struct {
	Latitude           float64
	Longitude          float64
	Timezone           string
	WeatherThreshold   int
	DefaultOpeningTime TimeOfDay
	DefaultClosingTime TimeOfDay
	MaxBookingsPerSlot int
}

// DefaultConfiguration returns the bootstrap settings.
func DefaultConfiguration() Configuration {
	return Configuration{
		Latitude:           41.8933203,
		Longitude:          12.4829321,
		Timezone:           "Europe/Rome",
		WeatherThreshold:   70,
		DefaultOpeningTime: TimeOfDay{hour: 17},
		DefaultClosingTime: TimeOfDay{hour: 22},
		MaxBookingsPerSlot: 10,
	}
}

// Validate checks every configuration bound. The update is rejected as a
// whole when any field is out of range.
func (configuration Configuration) Validate() error {
	if configuration.Latitude < -90 || configuration.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidConfiguration, configuration.Latitude)
	}
	if configuration.Longitude < -180 || configuration.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidConfiguration, configuration.Longitude)
	}
	if _, err := time.LoadLocation(configuration.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidConfiguration, configuration.Timezone)
	}
	if configuration.WeatherThreshold < 0 || configuration.WeatherThreshold > 100 {
		return fmt.Errorf("%w: weather threshold %d out of range", ErrInvalidConfiguration, configuration.WeatherThreshold)
	}
	if configuration.MaxBookingsPerSlot < 1 {
		return fmt.Errorf("%w: max bookings per slot must be at least 1", ErrInvalidConfiguration)
	}
	return nil
}

// Location resolves the configured IANA timezone.
func (configuration Configuration) Location() (*time.Location, error) {
	location, err := time.LoadLocation(configuration.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidConfiguration, configuration.Timezone)
	}
	return location, nil
}

// EventInput carries the fields of a confirm-event request. Date names a
// calendar day in the configured timezone; a closing time at or before the
// opening time rolls over to the next day.
type EventInput struct {
	Title       string
	Description string
	Date        time.Time
	OpeningTime TimeOfDay
	ClosingTime TimeOfDay
	Capacity    int
}

// Validate checks the event fields against the slot bounds.
func (input EventInput) Validate() error {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > 30 {
		return fmt.Errorf("%w: title must be 1-30 characters", ErrInvalidEventInput)
	}
	if len(strings.TrimSpace(input.Description)) > 255 {
		return fmt.Errorf("%w: description exceeds 255 characters", ErrInvalidEventInput)
	}
	if input.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", ErrInvalidEventInput)
	}
	return nil
}

// WeatherAssessment is the outcome of rating one slot window. A nil Rating
// means the forecast did not cover the window; Warning is always true then.
type WeatherAssessment struct {
	Rating            *int
	Warning           bool
	ForecastAvailable bool
}

// AuditEntry records one administrative mutation.
type AuditEntry struct {
	ActorID   AccountID
	Action    string
	Subject   string
	Detail    AuditDetail
	CreatedAt time.Time
}

// BookingResult summarizes slot availability after a successful booking.
type BookingResult struct {
	SlotID        SlotID
	BookedCount   int
	Capacity      int
	IsFullyBooked bool
}

// WeatherRater produces a suitability assessment for a time window.
// Provider failures are absorbed into an unknown-rating assessment, never
// surfaced as errors: weather is advisory, not a booking precondition.
type WeatherRater interface {
	Rate(ctx context.Context, start time.Time, end time.Time, configuration Configuration) WeatherAssessment
}

// FieldCipher encrypts personal fields and derives the deterministic lookup
// fingerprint used for email uniqueness.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	LookupHash(value string) string
}

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) bool
}

// Store is the persistence contract used by Service. Implementations must
// scope every WithTx callback to a single transaction that commits when the
// callback returns nil and rolls back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateAccount(ctx context.Context, account Account) (AccountID, error)
	GetAccount(ctx context.Context, accountID AccountID) (Account, error)
	FindAccountByEmailHash(ctx context.Context, lookupHash string) (Account, bool, error)
	FindSuperadmin(ctx context.Context) (Account, bool, error)
	UpdateAccount(ctx context.Context, account Account) error
	DeleteAccount(ctx context.Context, accountID AccountID) error
	ListAccounts(ctx context.Context) ([]Account, error)

	CreateSlot(ctx context.Context, slot Slot) (SlotID, error)
	GetSlot(ctx context.Context, slotID SlotID) (Slot, error)
	UpdateSlot(ctx context.Context, slot Slot) error
	DeleteSlot(ctx context.Context, slotID SlotID) error
	ListSlotsStartingBetween(ctx context.Context, from time.Time, to time.Time) ([]Slot, error)
	FindOverlappingSlot(ctx context.Context, start time.Time, end time.Time, exclude *SlotID) (Slot, bool, error)
	UpdateSlotWeather(ctx context.Context, slotID SlotID, assessment WeatherAssessment, refreshedAt time.Time) error

	CreateBooking(ctx context.Context, booking Booking) error
	DeleteBooking(ctx context.Context, accountID AccountID, slotID SlotID) error
	HasBooking(ctx context.Context, accountID AccountID, slotID SlotID) (bool, error)
	CountBookings(ctx context.Context, slotID SlotID) (int, error)
	ListBookedSlotIDs(ctx context.Context, accountID AccountID) ([]SlotID, error)

	GetConfiguration(ctx context.Context) (Configuration, error)
	UpdateConfiguration(ctx context.Context, configuration Configuration) error

	AppendAuditEntry(ctx context.Context, entry AuditEntry) error
}

package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/observatory/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	configurationRowID    = 1
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectSlot      = "slot"
	errorSubjectBooking   = "booking"
	errorSubjectConfig    = "configuration"
	errorSubjectAudit     = "audit"
	errorCodeCreate       = "create"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeUpdate       = "update"
	errorCodeDelete       = "delete"
	errorCodeList         = "list"
	errorCodeLookup       = "lookup"
	errorCodeCount        = "count"
	errorCodeInvalid      = "invalid"
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema and seeds the configuration row.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(&Account{}, &Slot{}, &Booking{}, &Configuration{}, &AuditEntry{}); err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeCreate, err)
	}
	defaults := booking.DefaultConfiguration()
	seed := configurationModel(defaults)
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error
	if err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeCreate, err)
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateAccount(ctx context.Context, account booking.Account) (booking.AccountID, error) {
	model := accountModel(account)
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return booking.AccountID{}, wrapStoreError(errorSubjectAccount, errorCodeDuplicate, booking.ErrEmailTaken)
	}
	if err != nil {
		return booking.AccountID{}, wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	accountID, err := booking.NewAccountID(model.AccountID)
	if err != nil {
		return booking.AccountID{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return accountID, nil
}

func (store *Store) GetAccount(ctx context.Context, accountID booking.AccountID) (booking.Account, error) {
	var model Account
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, booking.ErrAccountNotFound)
	}
	if err != nil {
		return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(model)
}

func (store *Store) FindAccountByEmailHash(ctx context.Context, lookupHash string) (booking.Account, bool, error) {
	var model Account
	err := store.db.WithContext(ctx).
		Where("email_lookup_hash = ?", lookupHash).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Account{}, false, nil
	}
	if err != nil {
		return booking.Account{}, false, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return booking.Account{}, false, err
	}
	return account, true, nil
}

func (store *Store) FindSuperadmin(ctx context.Context) (booking.Account, bool, error) {
	var model Account
	err := store.db.WithContext(ctx).
		Where("superadmin = ?", true).
		Order("created_at ASC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Account{}, false, nil
	}
	if err != nil {
		return booking.Account{}, false, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return booking.Account{}, false, err
	}
	return account, true, nil
}

func (store *Store) UpdateAccount(ctx context.Context, account booking.Account) error {
	model := accountModel(account)
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", account.ID.String()).
		Updates(map[string]interface{}{
			"encrypted_name":    model.EncryptedName,
			"encrypted_email":   model.EncryptedEmail,
			"email_lookup_hash": model.EmailLookupHash,
			"password_hash":     model.PasswordHash,
			"role":              model.Role,
			"blocked":           model.Blocked,
			"superadmin":        model.Superadmin,
		})
	if isUniqueViolation(result.Error) {
		return wrapStoreError(errorSubjectAccount, errorCodeDuplicate, booking.ErrEmailTaken)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, booking.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) DeleteAccount(ctx context.Context, accountID booking.AccountID) error {
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID.String()).
		Delete(&Booking{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeDelete, err)
	}
	result := store.db.WithContext(ctx).
		Where("account_id = ?", accountID.String()).
		Delete(&Account{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeDelete, booking.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) ListAccounts(ctx context.Context) ([]booking.Account, error) {
	var rows []Account
	err := store.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	accounts := make([]booking.Account, 0, len(rows))
	for _, row := range rows {
		account, err := mapAccount(row)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (store *Store) CreateSlot(ctx context.Context, slot booking.Slot) (booking.SlotID, error) {
	model := slotModel(slot)
	err := store.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		return booking.SlotID{}, wrapStoreError(errorSubjectSlot, errorCodeCreate, err)
	}
	slotID, err := booking.NewSlotID(model.SlotID)
	if err != nil {
		return booking.SlotID{}, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
	}
	return slotID, nil
}

func (store *Store) GetSlot(ctx context.Context, slotID booking.SlotID) (booking.Slot, error) {
	var model Slot
	err := store.db.WithContext(ctx).
		Where("slot_id = ?", slotID.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Slot{}, wrapStoreError(errorSubjectSlot, errorCodeGet, booking.ErrSlotNotFound)
	}
	if err != nil {
		return booking.Slot{}, wrapStoreError(errorSubjectSlot, errorCodeGet, err)
	}
	return mapSlot(model)
}

func (store *Store) UpdateSlot(ctx context.Context, slot booking.Slot) error {
	model := slotModel(slot)
	result := store.db.WithContext(ctx).
		Model(&Slot{}).
		Where("slot_id = ?", slot.ID.String()).
		Updates(map[string]interface{}{
			"title":                model.Title,
			"description":          model.Description,
			"start_time":           model.StartTime,
			"end_time":             model.EndTime,
			"capacity":             model.Capacity,
			"weather_rating":       model.WeatherRating,
			"weather_warning":      model.WeatherWarning,
			"forecast_available":   model.ForecastAvailable,
			"weather_refreshed_at": model.WeatherRefreshedAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSlot, errorCodeUpdate, booking.ErrSlotNotFound)
	}
	return nil
}

func (store *Store) DeleteSlot(ctx context.Context, slotID booking.SlotID) error {
	err := store.db.WithContext(ctx).
		Where("slot_id = ?", slotID.String()).
		Delete(&Booking{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeDelete, err)
	}
	result := store.db.WithContext(ctx).
		Where("slot_id = ?", slotID.String()).
		Delete(&Slot{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSlot, errorCodeDelete, booking.ErrSlotNotFound)
	}
	return nil
}

func (store *Store) ListSlotsStartingBetween(ctx context.Context, from time.Time, to time.Time) ([]booking.Slot, error) {
	var rows []Slot
	err := store.db.WithContext(ctx).
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC()).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
	}
	slots := make([]booking.Slot, 0, len(rows))
	for _, row := range rows {
		slot, err := mapSlot(row)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (store *Store) FindOverlappingSlot(ctx context.Context, start time.Time, end time.Time, exclude *booking.SlotID) (booking.Slot, bool, error) {
	query := store.db.WithContext(ctx).
		Where("start_time < ? AND end_time > ?", end.UTC(), start.UTC())
	if exclude != nil {
		query = query.Where("slot_id <> ?", exclude.String())
	}
	var model Slot
	err := query.Order("start_time ASC").Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Slot{}, false, nil
	}
	if err != nil {
		return booking.Slot{}, false, wrapStoreError(errorSubjectSlot, errorCodeLookup, err)
	}
	slot, err := mapSlot(model)
	if err != nil {
		return booking.Slot{}, false, err
	}
	return slot, true, nil
}

func (store *Store) UpdateSlotWeather(ctx context.Context, slotID booking.SlotID, assessment booking.WeatherAssessment, refreshedAt time.Time) error {
	stamp := refreshedAt.UTC()
	result := store.db.WithContext(ctx).
		Model(&Slot{}).
		Where("slot_id = ?", slotID.String()).
		Updates(map[string]interface{}{
			"weather_rating":       assessment.Rating,
			"weather_warning":      assessment.Warning,
			"forecast_available":   assessment.ForecastAvailable,
			"weather_refreshed_at": &stamp,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSlot, errorCodeUpdate, booking.ErrSlotNotFound)
	}
	return nil
}

func (store *Store) CreateBooking(ctx context.Context, record booking.Booking) error {
	model := Booking{
		AccountID: record.AccountID.String(),
		SlotID:    record.SlotID.String(),
		CreatedAt: record.CreatedAt.UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, booking.ErrAlreadyBooked)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) DeleteBooking(ctx context.Context, accountID booking.AccountID, slotID booking.SlotID) error {
	result := store.db.WithContext(ctx).
		Where("account_id = ? AND slot_id = ?", accountID.String(), slotID.String()).
		Delete(&Booking{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeDelete, booking.ErrBookingNotFound)
	}
	return nil
}

func (store *Store) HasBooking(ctx context.Context, accountID booking.AccountID, slotID booking.SlotID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("account_id = ? AND slot_id = ?", accountID.String(), slotID.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectBooking, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) CountBookings(ctx context.Context, slotID booking.SlotID) (int, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("slot_id = ?", slotID.String()).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBooking, errorCodeCount, err)
	}
	return int(count), nil
}

func (store *Store) ListBookedSlotIDs(ctx context.Context, accountID booking.AccountID) ([]booking.SlotID, error) {
	var rawIDs []string
	err := store.db.WithContext(ctx).
		Model(&Booking{}).
		Where("account_id = ?", accountID.String()).
		Pluck("slot_id", &rawIDs).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	slotIDs := make([]booking.SlotID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		slotID, err := booking.NewSlotID(raw)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		slotIDs = append(slotIDs, slotID)
	}
	return slotIDs, nil
}

func (store *Store) GetConfiguration(ctx context.Context) (booking.Configuration, error) {
	var model Configuration
	err := store.db.WithContext(ctx).
		Where("id = ?", configurationRowID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.DefaultConfiguration(), nil
	}
	if err != nil {
		return booking.Configuration{}, wrapStoreError(errorSubjectConfig, errorCodeGet, err)
	}
	return mapConfiguration(model)
}

func (store *Store) UpdateConfiguration(ctx context.Context, configuration booking.Configuration) error {
	model := configurationModel(configuration)
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"latitude", "longitude", "timezone", "weather_threshold",
				"default_opening_time", "default_closing_time", "max_bookings_per_slot",
				"updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) AppendAuditEntry(ctx context.Context, entry booking.AuditEntry) error {
	model := AuditEntry{
		ActorID:   entry.ActorID.String(),
		Action:    entry.Action,
		Subject:   entry.Subject,
		Detail:    datatypes.JSON([]byte(entry.Detail.String())),
		CreatedAt: entry.CreatedAt.UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectAudit, errorCodeCreate, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func accountModel(account booking.Account) Account {
	return Account{
		AccountID:       account.ID.String(),
		EncryptedName:   account.EncryptedName,
		EncryptedEmail:  account.EncryptedEmail,
		EmailLookupHash: account.EmailLookupHash,
		PasswordHash:    account.PasswordHash,
		Role:            account.Role.String(),
		Blocked:         account.Blocked,
		Superadmin:      account.Superadmin,
	}
}

func mapAccount(model Account) (booking.Account, error) {
	accountID, err := booking.NewAccountID(model.AccountID)
	if err != nil {
		return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	role, err := booking.ParseRole(model.Role)
	if err != nil {
		return booking.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return booking.Account{
		ID:              accountID,
		EncryptedName:   model.EncryptedName,
		EncryptedEmail:  model.EncryptedEmail,
		EmailLookupHash: model.EmailLookupHash,
		PasswordHash:    model.PasswordHash,
		Role:            role,
		Blocked:         model.Blocked,
		Superadmin:      model.Superadmin,
	}, nil
}

func slotModel(slot booking.Slot) Slot {
	model := Slot{
		SlotID:            slot.ID.String(),
		Title:             slot.Title,
		Description:       slot.Description,
		StartTime:         slot.StartTime.UTC(),
		EndTime:           slot.EndTime.UTC(),
		Capacity:          slot.Capacity,
		WeatherRating:     slot.WeatherRating,
		WeatherWarning:    slot.WeatherWarning,
		ForecastAvailable: slot.ForecastAvailable,
	}
	if !slot.WeatherRefreshedAt.IsZero() {
		refreshedAt := slot.WeatherRefreshedAt.UTC()
		model.WeatherRefreshedAt = &refreshedAt
	}
	return model
}

func mapSlot(model Slot) (booking.Slot, error) {
	slotID, err := booking.NewSlotID(model.SlotID)
	if err != nil {
		return booking.Slot{}, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
	}
	slot := booking.Slot{
		ID:                slotID,
		Title:             model.Title,
		Description:       model.Description,
		StartTime:         model.StartTime.UTC(),
		EndTime:           model.EndTime.UTC(),
		Capacity:          model.Capacity,
		WeatherRating:     model.WeatherRating,
		WeatherWarning:    model.WeatherWarning,
		ForecastAvailable: model.ForecastAvailable,
	}
	if model.WeatherRefreshedAt != nil {
		slot.WeatherRefreshedAt = model.WeatherRefreshedAt.UTC()
	}
	return slot, nil
}

func configurationModel(configuration booking.Configuration) Configuration {
	return Configuration{
		ID:                 configurationRowID,
		Latitude:           configuration.Latitude,
		Longitude:          configuration.Longitude,
		Timezone:           configuration.Timezone,
		WeatherThreshold:   configuration.WeatherThreshold,
		DefaultOpeningTime: configuration.DefaultOpeningTime.String(),
		DefaultClosingTime: configuration.DefaultClosingTime.String(),
		MaxBookingsPerSlot: configuration.MaxBookingsPerSlot,
		UpdatedAt:          time.Now().UTC(),
	}
}

func mapConfiguration(model Configuration) (booking.Configuration, error) {
	openingTime, err := booking.ParseTimeOfDay(model.DefaultOpeningTime)
	if err != nil {
		return booking.Configuration{}, wrapStoreError(errorSubjectConfig, errorCodeInvalid, err)
	}
	closingTime, err := booking.ParseTimeOfDay(model.DefaultClosingTime)
	if err != nil {
		return booking.Configuration{}, wrapStoreError(errorSubjectConfig, errorCodeInvalid, err)
	}
	return booking.Configuration{
		Latitude:           model.Latitude,
		Longitude:          model.Longitude,
		Timezone:           model.Timezone,
		WeatherThreshold:   model.WeatherThreshold,
		DefaultOpeningTime: openingTime,
		DefaultClosingTime: closingTime,
		MaxBookingsPerSlot: model.MaxBookingsPerSlot,
	}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

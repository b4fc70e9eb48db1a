package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// memoryStore is an in-memory Store. It is safe for concurrent use so the
// capacity tests can hammer it from many goroutines.
type memoryStore struct {
	mu            sync.Mutex
	accounts      map[string]Account
	slots         map[string]Slot
	bookings      map[string]map[string]Booking
	configuration Configuration
	audits        []AuditEntry
	nextAccount   int
	nextSlot      int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts:      make(map[string]Account),
		slots:         make(map[string]Slot),
		bookings:      make(map[string]map[string]Booking),
		configuration: DefaultConfiguration(),
	}
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *memoryStore) CreateAccount(ctx context.Context, account Account) (AccountID, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, existing := range store.accounts {
		if existing.EmailLookupHash == account.EmailLookupHash {
			return AccountID{}, ErrEmailTaken
		}
	}
	store.nextAccount++
	id := fmt.Sprintf("account-%d", store.nextAccount)
	account.ID = AccountID{value: id}
	store.accounts[id] = account
	return account.ID, nil
}

func (store *memoryStore) GetAccount(ctx context.Context, accountID AccountID) (Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID.String()]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (store *memoryStore) FindAccountByEmailHash(ctx context.Context, lookupHash string) (Account, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, account := range store.accounts {
		if account.EmailLookupHash == lookupHash {
			return account, true, nil
		}
	}
	return Account{}, false, nil
}

func (store *memoryStore) FindSuperadmin(ctx context.Context) (Account, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, account := range store.accounts {
		if account.Superadmin {
			return account, true, nil
		}
	}
	return Account{}, false, nil
}

func (store *memoryStore) UpdateAccount(ctx context.Context, account Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.accounts[account.ID.String()]; !ok {
		return ErrAccountNotFound
	}
	store.accounts[account.ID.String()] = account
	return nil
}

func (store *memoryStore) DeleteAccount(ctx context.Context, accountID AccountID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.accounts[accountID.String()]; !ok {
		return ErrAccountNotFound
	}
	delete(store.accounts, accountID.String())
	for slotID := range store.bookings {
		delete(store.bookings[slotID], accountID.String())
	}
	return nil
}

func (store *memoryStore) ListAccounts(ctx context.Context) ([]Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	accounts := make([]Account, 0, len(store.accounts))
	for _, account := range store.accounts {
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (store *memoryStore) CreateSlot(ctx context.Context, slot Slot) (SlotID, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.nextSlot++
	id := fmt.Sprintf("slot-%d", store.nextSlot)
	slot.ID = SlotID{value: id}
	store.slots[id] = slot
	return slot.ID, nil
}

func (store *memoryStore) GetSlot(ctx context.Context, slotID SlotID) (Slot, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	slot, ok := store.slots[slotID.String()]
	if !ok {
		return Slot{}, ErrSlotNotFound
	}
	return slot, nil
}

func (store *memoryStore) UpdateSlot(ctx context.Context, slot Slot) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.slots[slot.ID.String()]; !ok {
		return ErrSlotNotFound
	}
	store.slots[slot.ID.String()] = slot
	return nil
}

func (store *memoryStore) DeleteSlot(ctx context.Context, slotID SlotID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.slots[slotID.String()]; !ok {
		return ErrSlotNotFound
	}
	delete(store.slots, slotID.String())
	delete(store.bookings, slotID.String())
	return nil
}

func (store *memoryStore) ListSlotsStartingBetween(ctx context.Context, from time.Time, to time.Time) ([]Slot, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	slots := make([]Slot, 0)
	for _, slot := range store.slots {
		if !slot.StartTime.Before(from) && slot.StartTime.Before(to) {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func (store *memoryStore) FindOverlappingSlot(ctx context.Context, start time.Time, end time.Time, exclude *SlotID) (Slot, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, slot := range store.slots {
		if exclude != nil && slot.ID == *exclude {
			continue
		}
		if slot.StartTime.Before(end) && slot.EndTime.After(start) {
			return slot, true, nil
		}
	}
	return Slot{}, false, nil
}

func (store *memoryStore) UpdateSlotWeather(ctx context.Context, slotID SlotID, assessment WeatherAssessment, refreshedAt time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	slot, ok := store.slots[slotID.String()]
	if !ok {
		return ErrSlotNotFound
	}
	slot.WeatherRating = assessment.Rating
	slot.WeatherWarning = assessment.Warning
	slot.ForecastAvailable = assessment.ForecastAvailable
	slot.WeatherRefreshedAt = refreshedAt
	store.slots[slotID.String()] = slot
	return nil
}

func (store *memoryStore) CreateBooking(ctx context.Context, record Booking) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	bySlot, ok := store.bookings[record.SlotID.String()]
	if !ok {
		bySlot = make(map[string]Booking)
		store.bookings[record.SlotID.String()] = bySlot
	}
	if _, exists := bySlot[record.AccountID.String()]; exists {
		return ErrAlreadyBooked
	}
	bySlot[record.AccountID.String()] = record
	return nil
}

func (store *memoryStore) DeleteBooking(ctx context.Context, accountID AccountID, slotID SlotID) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	bySlot, ok := store.bookings[slotID.String()]
	if !ok {
		return ErrBookingNotFound
	}
	if _, exists := bySlot[accountID.String()]; !exists {
		return ErrBookingNotFound
	}
	delete(bySlot, accountID.String())
	return nil
}

func (store *memoryStore) HasBooking(ctx context.Context, accountID AccountID, slotID SlotID) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	_, exists := store.bookings[slotID.String()][accountID.String()]
	return exists, nil
}

func (store *memoryStore) CountBookings(ctx context.Context, slotID SlotID) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.bookings[slotID.String()]), nil
}

func (store *memoryStore) ListBookedSlotIDs(ctx context.Context, accountID AccountID) ([]SlotID, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	slotIDs := make([]SlotID, 0)
	for rawSlotID, bySlot := range store.bookings {
		if _, exists := bySlot[accountID.String()]; exists {
			slotIDs = append(slotIDs, SlotID{value: rawSlotID})
		}
	}
	return slotIDs, nil
}

func (store *memoryStore) GetConfiguration(ctx context.Context) (Configuration, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.configuration, nil
}

func (store *memoryStore) UpdateConfiguration(ctx context.Context, configuration Configuration) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.configuration = configuration
	return nil
}

func (store *memoryStore) AppendAuditEntry(ctx context.Context, entry AuditEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.audits = append(store.audits, entry)
	return nil
}

// fakeCipher is reversible and deterministic, which keeps test assertions
// readable without real cryptography.
type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (fakeCipher) Decrypt(ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

func (fakeCipher) LookupHash(value string) string {
	return "lookup:" + strings.ToLower(strings.TrimSpace(value))
}

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (fakeHasher) Verify(password string, hash string) bool {
	return hash == "hashed:"+password
}

// stubRater returns a fixed assessment and records the windows it saw.
type stubRater struct {
	mu          sync.Mutex
	assessment  WeatherAssessment
	seenWindows [][2]time.Time
}

func (rater *stubRater) Rate(ctx context.Context, start time.Time, end time.Time, configuration Configuration) WeatherAssessment {
	rater.mu.Lock()
	defer rater.mu.Unlock()
	rater.seenWindows = append(rater.seenWindows, [2]time.Time{start, end})
	return rater.assessment
}

var testClock = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() time.Time { return testClock }, fakeCipher{}, fakeHasher{}, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustRegister(test *testing.T, service *Service, name string, address string) AccountID {
	test.Helper()
	accountID, err := service.Register(context.Background(), name, mustEmail(test, address), mustPassword(test, "Stargazer1"))
	if err != nil {
		test.Fatalf("register %s: %v", address, err)
	}
	return accountID
}

func mustAdmin(test *testing.T, service *Service, store *memoryStore, address string) AccountID {
	test.Helper()
	accountID := mustRegister(test, service, "Admin", address)
	store.mu.Lock()
	account := store.accounts[accountID.String()]
	account.Role = RoleAdmin
	store.accounts[accountID.String()] = account
	store.mu.Unlock()
	return accountID
}

func mustSuperadmin(test *testing.T, service *Service, store *memoryStore, address string) AccountID {
	test.Helper()
	accountID := mustRegister(test, service, "Root", address)
	store.mu.Lock()
	account := store.accounts[accountID.String()]
	account.Role = RoleSuperadmin
	account.Superadmin = true
	store.accounts[accountID.String()] = account
	store.mu.Unlock()
	return accountID
}

func mustEmail(test *testing.T, raw string) EmailAddress {
	test.Helper()
	email, err := NewEmailAddress(raw)
	if err != nil {
		test.Fatalf("email %q: %v", raw, err)
	}
	return email
}

func mustPassword(test *testing.T, raw string) Password {
	test.Helper()
	password, err := NewPassword(raw)
	if err != nil {
		test.Fatalf("password: %v", err)
	}
	return password
}

func mustTimeOfDay(test *testing.T, raw string) TimeOfDay {
	test.Helper()
	timeOfDay, err := ParseTimeOfDay(raw)
	if err != nil {
		test.Fatalf("time of day %q: %v", raw, err)
	}
	return timeOfDay
}

// seedSlot writes a slot directly into the store, bypassing calendar rules.
func seedSlot(test *testing.T, store *memoryStore, start time.Time, end time.Time, capacity int) SlotID {
	test.Helper()
	slotID, err := store.CreateSlot(context.Background(), Slot{
		Title:     "Viewing session",
		StartTime: start,
		EndTime:   end,
		Capacity:  capacity,
	})
	if err != nil {
		test.Fatalf("seed slot: %v", err)
	}
	return slotID
}

package booking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func eventOn(test *testing.T, day time.Time, opening string, closing string) EventInput {
	test.Helper()
	return EventInput{
		Title:       "Perseids watch",
		Description: "Meteor shower session",
		Date:        day,
		OpeningTime: mustTimeOfDay(test, opening),
		ClosingTime: mustTimeOfDay(test, closing),
		Capacity:    8,
	}
}

func TestConfirmEventCreatesSlot(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	rating := 85
	rater := &stubRater{assessment: WeatherAssessment{Rating: &rating, ForecastAvailable: true}}
	service := newTestService(test, store, WithWeatherRater(rater))
	adminID := mustAdmin(test, service, store, "admin@example.com")

	day := testClock.AddDate(0, 0, 2)
	slot, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, day, "17:00", "22:00"), nil)
	if err != nil {
		test.Fatalf("confirm event: %v", err)
	}
	if slot.ID.IsZero() {
		test.Fatal("created slot has no id")
	}
	if !slot.EndTime.After(slot.StartTime) {
		test.Fatal("event window is not forward in time")
	}
	if slot.WeatherRating == nil || *slot.WeatherRating != rating {
		test.Fatalf("expected rating %d persisted on slot, got %v", rating, slot.WeatherRating)
	}
	if len(store.audits) != 1 {
		test.Fatalf("expected 1 audit entry, got %d", len(store.audits))
	}
}

func TestConfirmEventRollsClosingToNextDay(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")

	day := testClock.AddDate(0, 0, 3)
	slot, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, day, "22:00", "02:00"), nil)
	if err != nil {
		test.Fatalf("confirm event: %v", err)
	}
	if window := slot.EndTime.Sub(slot.StartTime); window != 4*time.Hour {
		test.Fatalf("expected 4h window across midnight, got %v", window)
	}
}

func TestConfirmEventRejectsPastOpening(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")

	yesterday := testClock.AddDate(0, 0, -1)
	_, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, yesterday, "17:00", "22:00"), nil)
	if !errors.Is(err, ErrInvalidEventInput) {
		test.Fatalf("expected ErrInvalidEventInput, got %v", err)
	}
}

func TestConfirmEventRejectsSameDay(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")

	day := testClock.AddDate(0, 0, 2)
	if _, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, day, "17:00", "19:00"), nil); err != nil {
		test.Fatalf("first event: %v", err)
	}
	_, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, day, "20:00", "22:00"), nil)
	if !errors.Is(err, ErrEventSameDay) {
		test.Fatalf("expected ErrEventSameDay, got %v", err)
	}
}

func TestConfirmEventRejectsOverlap(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")

	firstDay := testClock.AddDate(0, 0, 2)
	if _, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, firstDay, "22:00", "04:00"), nil); err != nil {
		test.Fatalf("first event: %v", err)
	}
	// The next calendar day, but its window collides with the overnight tail.
	secondDay := testClock.AddDate(0, 0, 3)
	_, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, secondDay, "03:00", "06:00"), nil)
	if !errors.Is(err, ErrEventOverlap) {
		test.Fatalf("expected ErrEventOverlap, got %v", err)
	}
}

func TestConfirmEventEditsExistingSlot(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")

	day := testClock.AddDate(0, 0, 2)
	created, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, day, "17:00", "22:00"), nil)
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	edited := eventOn(test, day, "18:00", "23:00")
	edited.Title = "Later start"
	updated, err := service.ConfirmEvent(context.Background(), adminID, edited, &created.ID)
	if err != nil {
		test.Fatalf("edit: %v", err)
	}
	if updated.ID != created.ID {
		test.Fatal("edit produced a different slot id")
	}
	stored, _ := store.GetSlot(context.Background(), created.ID)
	if stored.Title != "Later start" {
		test.Fatalf("edit not persisted, title %q", stored.Title)
	}
}

func TestConfirmEventRejectsEditOfStartedEvent(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")
	startedID := seedSlot(test, store, testClock.Add(-time.Hour), testClock.Add(2*time.Hour), 5)

	day := testClock.AddDate(0, 0, 2)
	_, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, day, "17:00", "22:00"), &startedID)
	if !errors.Is(err, ErrEventStarted) {
		test.Fatalf("expected ErrEventStarted, got %v", err)
	}
}

func TestConfirmEventForbiddenForUsers(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	userID := mustRegister(test, service, "User", "user@example.com")

	day := testClock.AddDate(0, 0, 2)
	_, err := service.ConfirmEvent(context.Background(), userID, eventOn(test, day, "17:00", "22:00"), nil)
	if !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestConfirmEventWithoutRaterMarksUnknown(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")

	day := testClock.AddDate(0, 0, 2)
	slot, err := service.ConfirmEvent(context.Background(), adminID, eventOn(test, day, "17:00", "22:00"), nil)
	if err != nil {
		test.Fatalf("confirm event: %v", err)
	}
	if slot.WeatherRating != nil {
		test.Fatal("expected unknown rating without a rater")
	}
	if !slot.WeatherWarning {
		test.Fatal("unknown rating must raise the warning flag")
	}
}

func TestDeleteEventCascadesBookings(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")
	viewer := mustRegister(test, service, "Viewer", "cascade@example.com")
	slotID := seedSlot(test, store, testClock.Add(time.Hour), testClock.Add(4*time.Hour), 5)
	if _, err := service.Book(context.Background(), viewer, slotID); err != nil {
		test.Fatalf("book: %v", err)
	}

	if err := service.DeleteEvent(context.Background(), adminID, slotID); err != nil {
		test.Fatalf("delete event: %v", err)
	}
	if _, err := store.GetSlot(context.Background(), slotID); !errors.Is(err, ErrSlotNotFound) {
		test.Fatalf("slot still present after delete: %v", err)
	}
	booked, _ := store.HasBooking(context.Background(), viewer, slotID)
	if booked {
		test.Fatal("booking survived event deletion")
	}
}

func TestDeleteEventMissingSlot(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")

	missing, _ := NewSlotID("slot-404")
	err := service.DeleteEvent(context.Background(), adminID, missing)
	if !errors.Is(err, ErrSlotNotFound) {
		test.Fatalf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestUpdateConfigurationValidatesAtomically(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")

	valid, _ := service.GetConfiguration(context.Background())
	valid.WeatherThreshold = 80
	if _, err := service.UpdateConfiguration(context.Background(), adminID, valid); err != nil {
		test.Fatalf("valid update: %v", err)
	}

	invalid := valid
	invalid.Latitude = 200
	invalid.WeatherThreshold = 50
	_, err := service.UpdateConfiguration(context.Background(), adminID, invalid)
	if !errors.Is(err, ErrInvalidConfiguration) {
		test.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	current, _ := service.GetConfiguration(context.Background())
	if current.WeatherThreshold != 80 {
		test.Fatalf("rejected update leaked fields, threshold %d", current.WeatherThreshold)
	}
}

func TestSetRoleAndBlockedRespectSuperadminImmunity(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")
	rootID := mustSuperadmin(test, service, store, "root@example.com")
	userID := mustRegister(test, service, "User", "mortal@example.com")

	if err := service.SetRole(context.Background(), adminID, userID, RoleAdmin); err != nil {
		test.Fatalf("promote user: %v", err)
	}
	if err := service.SetRole(context.Background(), adminID, rootID, RoleUser); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected immunity on role change, got %v", err)
	}
	if err := service.SetBlocked(context.Background(), adminID, rootID, true); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected immunity on block, got %v", err)
	}
	if err := service.DeleteAccount(context.Background(), adminID, rootID); !errors.Is(err, ErrForbidden) {
		test.Fatalf("expected immunity on delete, got %v", err)
	}
}

func TestSetRoleRejectsSuperadminGrant(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	rootID := mustSuperadmin(test, service, store, "root@example.com")
	userID := mustRegister(test, service, "User", "aspirant@example.com")

	err := service.SetRole(context.Background(), rootID, userID, RoleSuperadmin)
	if !errors.Is(err, ErrInvalidRole) {
		test.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestDeleteAccountSuperadminOnly(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")
	rootID := mustSuperadmin(test, service, store, "root@example.com")
	userID := mustRegister(test, service, "User", "target@example.com")

	if err := service.DeleteAccount(context.Background(), adminID, userID); !errors.Is(err, ErrForbidden) {
		test.Fatalf("admin deletion should be forbidden, got %v", err)
	}
	if err := service.DeleteAccount(context.Background(), rootID, rootID); !errors.Is(err, ErrForbidden) {
		test.Fatalf("self deletion should be forbidden, got %v", err)
	}
	if err := service.DeleteAccount(context.Background(), rootID, userID); err != nil {
		test.Fatalf("superadmin deletion: %v", err)
	}
	if _, err := store.GetAccount(context.Background(), userID); !errors.Is(err, ErrAccountNotFound) {
		test.Fatalf("account still present: %v", err)
	}
}

func TestListAccountsDecryptsProfiles(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store, "admin@example.com")
	mustRegister(test, service, "Tycho Brahe", "tycho@example.com")

	profiles, err := service.ListAccounts(context.Background(), adminID)
	if err != nil {
		test.Fatalf("list accounts: %v", err)
	}
	var found bool
	for _, profile := range profiles {
		if profile.Email == "tycho@example.com" && profile.Name == "Tycho Brahe" {
			found = true
		}
	}
	if !found {
		test.Fatal("registered profile missing or not decrypted")
	}
}

func TestBootstrapSuperadminIsIdempotent(test *testing.T) {
	test.Parallel()
	store := newMemoryStore()
	service := newTestService(test, store)
	email := mustEmail(test, "root@example.com")
	password := mustPassword(test, "Stargazer1")

	firstID, created, err := service.BootstrapSuperadmin(context.Background(), "Root", email, password)
	if err != nil || !created {
		test.Fatalf("first bootstrap: created=%v err=%v", created, err)
	}
	secondID, created, err := service.BootstrapSuperadmin(context.Background(), "Root", email, password)
	if err != nil {
		test.Fatalf("second bootstrap: %v", err)
	}
	if created {
		test.Fatal("second bootstrap reported a new account")
	}
	if firstID != secondID {
		test.Fatalf("bootstrap ids diverged: %s vs %s", firstID.String(), secondID.String())
	}
}

// rendezvousStore holds each calendar read briefly so two confirmations
// checking the calendar at the same time would meet inside the window
// between check and insert.
type rendezvousStore struct {
	*memoryStore
	meetings chan struct{}
}

func (store *rendezvousStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *rendezvousStore) ListSlotsStartingBetween(ctx context.Context, from time.Time, to time.Time) ([]Slot, error) {
	select {
	case store.meetings <- struct{}{}:
	case <-store.meetings:
	case <-time.After(100 * time.Millisecond):
	}
	return store.memoryStore.ListSlotsStartingBetween(ctx, from, to)
}

func TestConfirmEventSerializesConcurrentCreates(test *testing.T) {
	test.Parallel()
	store := &rendezvousStore{memoryStore: newMemoryStore(), meetings: make(chan struct{})}
	service := newTestService(test, store)
	adminID := mustAdmin(test, service, store.memoryStore, "calendar@example.com")

	day := testClock.AddDate(0, 0, 2)
	inputs := []EventInput{
		eventOn(test, day, "17:00", "19:00"),
		eventOn(test, day, "20:00", "22:00"),
	}

	results := make(chan error, len(inputs))
	for _, input := range inputs {
		input := input
		go func() {
			_, err := service.ConfirmEvent(context.Background(), adminID, input, nil)
			results <- err
		}()
	}

	var succeeded, sameDay int
	for range inputs {
		switch err := <-results; {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrEventSameDay):
			sameDay++
		default:
			test.Fatalf("unexpected confirm error: %v", err)
		}
	}
	if succeeded != 1 || sameDay != 1 {
		test.Fatalf("concurrent same-day creates: %d succeeded, %d rejected; want exactly one of each", succeeded, sameDay)
	}
}

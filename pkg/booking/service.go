package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Service contains the domain logic over a Store.
//
// Mutations on a slot run under a per-slot mutex spanning the whole
// read-check-write transaction, so the capacity invariant holds under
// concurrent callers. Weather lookups never run while a slot lock is held.
type Service struct {
	store     Store
	nowFn     func() time.Time
	cipher    FieldCipher
	passwords PasswordHasher
	weather   WeatherRater
	logger    OperationLogger
	slotLocks *keyedMutex

	// calendarLock serializes event creation and rescheduling. The
	// one-event-per-day and no-overlap rules span every slot, so a per-slot
	// lock cannot cover the check-then-insert window.
	calendarLock sync.Mutex
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, cipher FieldCipher, passwords PasswordHasher, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if cipher == nil {
		return nil, fmt.Errorf("%w: field cipher dependency is nil", ErrInvalidServiceConfig)
	}
	if passwords == nil {
		return nil, fmt.Errorf("%w: password hasher dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:     store,
		nowFn:     now,
		cipher:    cipher,
		passwords: passwords,
		slotLocks: newKeyedMutex(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Book reserves a seat on a slot for the account. Preconditions are checked
// in order inside the per-slot critical section: slot exists, the slot has
// not started, a seat is free, and the account has not booked it already.
// The first failing check wins and nothing is written.
func (service *Service) Book(ctx context.Context, accountID AccountID, slotID SlotID) (BookingResult, error) {
	release := service.slotLocks.Lock(slotID.String())
	defer release()

	var result BookingResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := service.requireActiveAccount(ctx, transactionStore, accountID); err != nil {
			return err
		}
		slot, err := transactionStore.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		now := service.nowFn()
		if !now.Before(slot.StartTime) {
			return ErrSlotExpired
		}
		bookedCount, err := transactionStore.CountBookings(ctx, slotID)
		if err != nil {
			return err
		}
		if bookedCount >= slot.Capacity {
			return ErrSlotFull
		}
		alreadyBooked, err := transactionStore.HasBooking(ctx, accountID, slotID)
		if err != nil {
			return err
		}
		if alreadyBooked {
			return ErrAlreadyBooked
		}
		if err := transactionStore.CreateBooking(ctx, Booking{
			AccountID: accountID,
			SlotID:    slotID,
			CreatedAt: now.UTC(),
		}); err != nil {
			return err
		}
		result = BookingResult{
			SlotID:        slotID,
			BookedCount:   bookedCount + 1,
			Capacity:      slot.Capacity,
			IsFullyBooked: bookedCount+1 >= slot.Capacity,
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationBook,
		ActorID:   accountID,
		SlotID:    slotID,
		Error:     operationError,
	})
	return result, operationError
}

// Cancel removes the account's booking on a slot. Cancellation shares the
// slot's critical section with Book so a cancel racing a booking on the
// last seat resolves in a fixed order.
func (service *Service) Cancel(ctx context.Context, accountID AccountID, slotID SlotID) error {
	release := service.slotLocks.Lock(slotID.String())
	defer release()

	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := service.requireActiveAccount(ctx, transactionStore, accountID); err != nil {
			return err
		}
		slot, err := transactionStore.GetSlot(ctx, slotID)
		if err != nil {
			// No slot means no booking on it either; callers cancel
			// bookings, not slots.
			if errors.Is(err, ErrSlotNotFound) {
				return ErrBookingNotFound
			}
			return err
		}
		hasBooking, err := transactionStore.HasBooking(ctx, accountID, slotID)
		if err != nil {
			return err
		}
		if !hasBooking {
			return ErrBookingNotFound
		}
		if !service.nowFn().Before(slot.StartTime) {
			return ErrSlotExpired
		}
		return transactionStore.DeleteBooking(ctx, accountID, slotID)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCancel,
		ActorID:   accountID,
		SlotID:    slotID,
		Error:     operationError,
	})
	return operationError
}

// ListSlots returns viewer-annotated slots starting inside the window.
func (service *Service) ListSlots(ctx context.Context, accountID AccountID, from time.Time, to time.Time) ([]SlotView, error) {
	slots, err := service.store.ListSlotsStartingBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	bookedSlotIDs, err := service.store.ListBookedSlotIDs(ctx, accountID)
	if err != nil {
		return nil, err
	}
	booked := make(map[string]struct{}, len(bookedSlotIDs))
	for _, slotID := range bookedSlotIDs {
		booked[slotID.String()] = struct{}{}
	}
	now := service.nowFn()
	views := make([]SlotView, 0, len(slots))
	for _, slot := range slots {
		bookedCount, err := service.store.CountBookings(ctx, slot.ID)
		if err != nil {
			return nil, err
		}
		_, isUserBooked := booked[slot.ID.String()]
		views = append(views, DeriveSlotView(slot, now, bookedCount, isUserBooked))
	}
	return views, nil
}

// requireActiveAccount loads the account and rejects blocked identities.
func (service *Service) requireActiveAccount(ctx context.Context, store Store, accountID AccountID) (Account, error) {
	account, err := store.GetAccount(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if account.Blocked {
		return Account{}, ErrAccountBlocked
	}
	return account, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

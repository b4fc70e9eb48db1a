package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ConfirmEvent creates or edits a slot. The weather assessment is computed
// before the transaction opens, so the provider call never runs while the
// slot lock or a database transaction is held. A nil slotID creates; a
// non-nil one edits in place.
func (service *Service) ConfirmEvent(ctx context.Context, adminID AccountID, input EventInput, slotID *SlotID) (Slot, error) {
	slot, operationError := service.confirmEvent(ctx, adminID, input, slotID)
	logEntry := OperationLog{
		Operation: operationConfirmEvent,
		ActorID:   adminID,
		SlotID:    slot.ID,
		Error:     operationError,
	}
	if slotID != nil {
		logEntry.SlotID = *slotID
	}
	service.logOperation(ctx, logEntry)
	return slot, operationError
}

func (service *Service) confirmEvent(ctx context.Context, adminID AccountID, input EventInput, slotID *SlotID) (Slot, error) {
	actor, err := service.requireActor(ctx, adminID, ActionConfirmEvent, nil)
	if err != nil {
		return Slot{}, err
	}
	if err := input.Validate(); err != nil {
		return Slot{}, err
	}
	configuration, err := service.store.GetConfiguration(ctx)
	if err != nil {
		return Slot{}, err
	}
	location, err := configuration.Location()
	if err != nil {
		return Slot{}, err
	}

	startLocal := input.OpeningTime.On(input.Date.In(location), location)
	endLocal := input.ClosingTime.On(input.Date.In(location), location)
	if !endLocal.After(startLocal) {
		endLocal = endLocal.AddDate(0, 0, 1)
	}
	now := service.nowFn()
	if !startLocal.After(now.In(location)) {
		return Slot{}, fmt.Errorf("%w: opening time is in the past", ErrInvalidEventInput)
	}
	startUTC := startLocal.UTC()
	endUTC := endLocal.UTC()

	// Provider call happens here, outside any lock.
	assessment := service.assessWeather(ctx, startUTC, endUTC, configuration)

	// Calendar rules reach across all slots; creates and edits serialize on
	// one lock. Edits additionally take the slot lock so a reschedule never
	// interleaves with Book or Cancel on the same slot.
	service.calendarLock.Lock()
	defer service.calendarLock.Unlock()
	if slotID != nil {
		release := service.slotLocks.Lock(slotID.String())
		defer release()
	}

	var saved Slot
	err = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var existing *Slot
		if slotID != nil {
			current, err := transactionStore.GetSlot(ctx, *slotID)
			if err != nil {
				return err
			}
			if !now.Before(current.StartTime) {
				return ErrEventStarted
			}
			existing = &current
		}
		if err := service.checkEventCalendar(ctx, transactionStore, startUTC, endUTC, slotID); err != nil {
			return err
		}

		slot := Slot{
			Title:              input.Title,
			Description:        input.Description,
			StartTime:          startUTC,
			EndTime:            endUTC,
			Capacity:           input.Capacity,
			WeatherRating:      assessment.Rating,
			WeatherWarning:     assessment.Warning,
			ForecastAvailable:  assessment.ForecastAvailable,
			WeatherRefreshedAt: now.UTC(),
		}
		if existing != nil {
			slot.ID = existing.ID
			if err := transactionStore.UpdateSlot(ctx, slot); err != nil {
				return err
			}
		} else {
			createdID, err := transactionStore.CreateSlot(ctx, slot)
			if err != nil {
				return err
			}
			slot.ID = createdID
		}
		saved = slot
		return service.appendAudit(ctx, transactionStore, actor.ID, string(ActionConfirmEvent), auditSubjectSlot, map[string]any{
			"slot_id":  slot.ID.String(),
			"start":    startUTC.Format(time.RFC3339),
			"end":      endUTC.Format(time.RFC3339),
			"capacity": input.Capacity,
			"edited":   existing != nil,
		})
	})
	if err != nil {
		return Slot{}, err
	}
	return saved, nil
}

// checkEventCalendar enforces the scheduling rules: at most one event starts
// per UTC day and windows never overlap.
func (service *Service) checkEventCalendar(ctx context.Context, store Store, startUTC time.Time, endUTC time.Time, exclude *SlotID) error {
	dayStart := startUTC.Truncate(24 * time.Hour)
	sameDay, err := store.ListSlotsStartingBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	for _, other := range sameDay {
		if exclude != nil && other.ID == *exclude {
			continue
		}
		return fmt.Errorf("%w: slot %s", ErrEventSameDay, other.ID.String())
	}
	overlapping, found, err := store.FindOverlappingSlot(ctx, startUTC, endUTC, exclude)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: slot %s", ErrEventOverlap, overlapping.ID.String())
	}
	return nil
}

// DeleteEvent removes a slot and cascades its bookings. A missing slot is a
// NotFound failure, never a silent success: the audit trail stays honest.
func (service *Service) DeleteEvent(ctx context.Context, adminID AccountID, slotID SlotID) error {
	release := service.slotLocks.Lock(slotID.String())
	defer release()

	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		actor, err := service.requireActorIn(ctx, transactionStore, adminID, ActionDeleteEvent, nil)
		if err != nil {
			return err
		}
		slot, err := transactionStore.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if err := transactionStore.DeleteSlot(ctx, slotID); err != nil {
			return err
		}
		return service.appendAudit(ctx, transactionStore, actor.ID, string(ActionDeleteEvent), auditSubjectSlot, map[string]any{
			"slot_id": slotID.String(),
			"start":   slot.StartTime.Format(time.RFC3339),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteEvent,
		ActorID:   adminID,
		SlotID:    slotID,
		Error:     operationError,
	})
	return operationError
}

// GetConfiguration returns the latest committed settings. Configuration is
// never cached: an update is visible to the very next read.
func (service *Service) GetConfiguration(ctx context.Context) (Configuration, error) {
	return service.store.GetConfiguration(ctx)
}

// UpdateConfiguration validates and applies new settings atomically.
func (service *Service) UpdateConfiguration(ctx context.Context, adminID AccountID, configuration Configuration) (Configuration, error) {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		actor, err := service.requireActorIn(ctx, transactionStore, adminID, ActionUpdateConfiguration, nil)
		if err != nil {
			return err
		}
		if err := configuration.Validate(); err != nil {
			return err
		}
		if err := transactionStore.UpdateConfiguration(ctx, configuration); err != nil {
			return err
		}
		return service.appendAudit(ctx, transactionStore, actor.ID, string(ActionUpdateConfiguration), auditSubjectConfiguration, map[string]any{
			"timezone":  configuration.Timezone,
			"threshold": configuration.WeatherThreshold,
			"latitude":  configuration.Latitude,
			"longitude": configuration.Longitude,
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationUpdateConfiguration,
		ActorID:   adminID,
		Error:     operationError,
	})
	if operationError != nil {
		return Configuration{}, operationError
	}
	return configuration, nil
}

// SetRole changes a non-superadmin account's role. Promotion to superadmin
// through this path is rejected; the sole superadmin comes from bootstrap.
func (service *Service) SetRole(ctx context.Context, adminID AccountID, targetID AccountID, newRole Role) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if newRole != RoleUser && newRole != RoleAdmin {
			return fmt.Errorf("%w: %q is not assignable", ErrInvalidRole, newRole)
		}
		target, err := transactionStore.GetAccount(ctx, targetID)
		if err != nil {
			return err
		}
		policyTarget := TargetFor(target)
		actor, err := service.requireActorIn(ctx, transactionStore, adminID, ActionSetRole, &policyTarget)
		if err != nil {
			return err
		}
		target.Role = newRole
		if err := transactionStore.UpdateAccount(ctx, target); err != nil {
			return err
		}
		return service.appendAudit(ctx, transactionStore, actor.ID, string(ActionSetRole), auditSubjectAccount, map[string]any{
			"target_id": targetID.String(),
			"role":      newRole.String(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSetRole,
		ActorID:   adminID,
		TargetID:  targetID,
		Error:     operationError,
	})
	return operationError
}

// SetBlocked blocks or unblocks a non-superadmin account.
func (service *Service) SetBlocked(ctx context.Context, adminID AccountID, targetID AccountID, blocked bool) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		target, err := transactionStore.GetAccount(ctx, targetID)
		if err != nil {
			return err
		}
		policyTarget := TargetFor(target)
		actor, err := service.requireActorIn(ctx, transactionStore, adminID, ActionSetBlocked, &policyTarget)
		if err != nil {
			return err
		}
		target.Blocked = blocked
		if err := transactionStore.UpdateAccount(ctx, target); err != nil {
			return err
		}
		return service.appendAudit(ctx, transactionStore, actor.ID, string(ActionSetBlocked), auditSubjectAccount, map[string]any{
			"target_id": targetID.String(),
			"blocked":   blocked,
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSetBlocked,
		ActorID:   adminID,
		TargetID:  targetID,
		Error:     operationError,
	})
	return operationError
}

// DeleteAccount removes an account and cascades its bookings. Superadmins
// may not delete themselves or other superadmins; the policy table fails
// such attempts rather than no-op them.
func (service *Service) DeleteAccount(ctx context.Context, adminID AccountID, targetID AccountID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		target, err := transactionStore.GetAccount(ctx, targetID)
		if err != nil {
			return err
		}
		policyTarget := TargetFor(target)
		actor, err := service.requireActorIn(ctx, transactionStore, adminID, ActionDeleteAccount, &policyTarget)
		if err != nil {
			return err
		}
		if err := transactionStore.DeleteAccount(ctx, targetID); err != nil {
			return err
		}
		return service.appendAudit(ctx, transactionStore, actor.ID, string(ActionDeleteAccount), auditSubjectAccount, map[string]any{
			"target_id": targetID.String(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteAccount,
		ActorID:   adminID,
		TargetID:  targetID,
		Error:     operationError,
	})
	return operationError
}

// ListAccounts returns decrypted profiles for the admin dashboard.
func (service *Service) ListAccounts(ctx context.Context, adminID AccountID) ([]AccountProfile, error) {
	if _, err := service.requireActor(ctx, adminID, ActionListAccounts, nil); err != nil {
		return nil, err
	}
	accounts, err := service.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	profiles := make([]AccountProfile, 0, len(accounts))
	for _, account := range accounts {
		profile, err := service.decodeProfile(account)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// BootstrapSuperadmin ensures exactly one superadmin exists. Re-running
// against an initialized store returns the existing account untouched.
func (service *Service) BootstrapSuperadmin(ctx context.Context, name string, email EmailAddress, password Password) (AccountID, bool, error) {
	var accountID AccountID
	var created bool
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, found, err := transactionStore.FindSuperadmin(ctx)
		if err != nil {
			return err
		}
		if found {
			accountID = existing.ID
			return nil
		}
		account, err := service.sealAccount(name, email, password, RoleSuperadmin)
		if err != nil {
			return err
		}
		account.Superadmin = true
		createdID, err := transactionStore.CreateAccount(ctx, account)
		if err != nil {
			return err
		}
		accountID = createdID
		created = true
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationBootstrap,
		ActorID:   accountID,
		Error:     operationError,
	})
	if operationError != nil {
		return AccountID{}, false, operationError
	}
	return accountID, created, nil
}

// requireActor loads the acting account outside a transaction and applies
// the policy table.
func (service *Service) requireActor(ctx context.Context, actorID AccountID, action Action, target *Target) (Actor, error) {
	return service.requireActorIn(ctx, service.store, actorID, action, target)
}

func (service *Service) requireActorIn(ctx context.Context, store Store, actorID AccountID, action Action, target *Target) (Actor, error) {
	account, err := service.requireActiveAccount(ctx, store, actorID)
	if err != nil {
		return Actor{}, err
	}
	actor := ActorFor(account)
	if !Can(actor, action, target) {
		return Actor{}, ErrForbidden
	}
	return actor, nil
}

// assessWeather consults the configured rater; with none wired the slot is
// recorded as unknown until the background refresher reaches it.
func (service *Service) assessWeather(ctx context.Context, start time.Time, end time.Time, configuration Configuration) WeatherAssessment {
	if service.weather == nil {
		return WeatherAssessment{Warning: true}
	}
	return service.weather.Rate(ctx, start, end, configuration)
}

func (service *Service) appendAudit(ctx context.Context, store Store, actorID AccountID, action string, subject string, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return WrapError(action, subject, "audit_encode", err)
	}
	detail, err := NewAuditDetail(string(encoded))
	if err != nil {
		return err
	}
	return store.AppendAuditEntry(ctx, AuditEntry{
		ActorID:   actorID,
		Action:    action,
		Subject:   subject,
		Detail:    detail,
		CreatedAt: service.nowFn().UTC(),
	})
}

package booking

import (
	"context"
	"fmt"
)

// AccountProfile is a decrypted, caller-facing account view.
type AccountProfile struct {
	ID         AccountID
	Name       string
	Email      string
	Role       Role
	Blocked    bool
	Superadmin bool
}

// Register creates a user account. The email must be unused; uniqueness is
// enforced on the deterministic lookup hash because the field cipher is
// non-deterministic.
func (service *Service) Register(ctx context.Context, name string, email EmailAddress, password Password) (AccountID, error) {
	var accountID AccountID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if name == "" {
			return fmt.Errorf("%w: name is required", ErrInvalidAccountName)
		}
		_, taken, err := transactionStore.FindAccountByEmailHash(ctx, service.cipher.LookupHash(email.String()))
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailTaken
		}
		account, err := service.sealAccount(name, email, password, RoleUser)
		if err != nil {
			return err
		}
		createdID, err := transactionStore.CreateAccount(ctx, account)
		if err != nil {
			return err
		}
		accountID = createdID
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRegister,
		ActorID:   accountID,
		Error:     operationError,
	})
	if operationError != nil {
		return AccountID{}, operationError
	}
	return accountID, nil
}

// Authenticate verifies credentials and returns the decrypted profile.
// Unknown addresses and wrong passwords fail identically; blocked accounts
// are rejected even with correct credentials.
func (service *Service) Authenticate(ctx context.Context, email EmailAddress, password string) (AccountProfile, error) {
	account, found, err := service.store.FindAccountByEmailHash(ctx, service.cipher.LookupHash(email.String()))
	if err != nil {
		return AccountProfile{}, err
	}
	if !found || !service.passwords.Verify(password, account.PasswordHash) {
		return AccountProfile{}, ErrInvalidCredentials
	}
	if account.Blocked {
		return AccountProfile{}, ErrAccountBlocked
	}
	profile, err := service.decodeProfile(account)
	service.logOperation(ctx, OperationLog{
		Operation: operationAuthenticate,
		ActorID:   account.ID,
		Error:     err,
	})
	return profile, err
}

// ChangePassword rotates a credential after verifying the current one.
func (service *Service) ChangePassword(ctx context.Context, accountID AccountID, currentPassword string, newPassword Password) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := service.requireActiveAccount(ctx, transactionStore, accountID)
		if err != nil {
			return err
		}
		if !service.passwords.Verify(currentPassword, account.PasswordHash) {
			return ErrInvalidCredentials
		}
		hashed, err := service.passwords.Hash(newPassword.String())
		if err != nil {
			return WrapError(operationChangePassword, auditSubjectAccount, "hash", err)
		}
		account.PasswordHash = hashed
		return transactionStore.UpdateAccount(ctx, account)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationChangePassword,
		ActorID:   accountID,
		Error:     operationError,
	})
	return operationError
}

// GetProfile returns the decrypted profile for an account id.
func (service *Service) GetProfile(ctx context.Context, accountID AccountID) (AccountProfile, error) {
	account, err := service.store.GetAccount(ctx, accountID)
	if err != nil {
		return AccountProfile{}, err
	}
	return service.decodeProfile(account)
}

// sealAccount encrypts personal fields and hashes the credential.
func (service *Service) sealAccount(name string, email EmailAddress, password Password, role Role) (Account, error) {
	encryptedName, err := service.cipher.Encrypt(name)
	if err != nil {
		return Account{}, WrapError(operationRegister, auditSubjectAccount, "encrypt_name", err)
	}
	encryptedEmail, err := service.cipher.Encrypt(email.String())
	if err != nil {
		return Account{}, WrapError(operationRegister, auditSubjectAccount, "encrypt_email", err)
	}
	hashed, err := service.passwords.Hash(password.String())
	if err != nil {
		return Account{}, WrapError(operationRegister, auditSubjectAccount, "hash", err)
	}
	return Account{
		EncryptedName:   encryptedName,
		EncryptedEmail:  encryptedEmail,
		EmailLookupHash: service.cipher.LookupHash(email.String()),
		PasswordHash:    hashed,
		Role:            role,
	}, nil
}

func (service *Service) decodeProfile(account Account) (AccountProfile, error) {
	name, err := service.cipher.Decrypt(account.EncryptedName)
	if err != nil {
		return AccountProfile{}, WrapError(operationAuthenticate, auditSubjectAccount, "decrypt_name", err)
	}
	email, err := service.cipher.Decrypt(account.EncryptedEmail)
	if err != nil {
		return AccountProfile{}, WrapError(operationAuthenticate, auditSubjectAccount, "decrypt_email", err)
	}
	return AccountProfile{
		ID:         account.ID,
		Name:       name,
		Email:      email,
		Role:       account.Role,
		Blocked:    account.Blocked,
		Superadmin: account.Superadmin,
	}, nil
}

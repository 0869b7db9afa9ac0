package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dropin/internal/domain/account"
)

var (
	ErrCurrentPasswordWrong = errors.New("current password is incorrect")
	ErrNewPasswordSame      = errors.New("new password must be different from current password")
)

// ChangePasswordInput identifies the signed-in account and both passwords.
type ChangePasswordInput struct {
	AccountID       string
	CurrentPassword string
	NewPassword     string
}

func (in ChangePasswordInput) check() error {
	switch {
	case in.AccountID == "":
		return invalidf("account id is required")
	case in.CurrentPassword == "":
		return invalidf("current_password is required")
	case in.NewPassword == "":
		return invalidf("new_password is required")
	case in.NewPassword == in.CurrentPassword:
		return ErrNewPasswordSame
	}
	return nil
}

// AccountStoreForChangePassword loads and saves accounts by id.
type AccountStoreForChangePassword interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
}

// ChangePasswordDeps holds dependencies for ChangePassword.
type ChangePasswordDeps struct {
	AccountStore AccountStoreForChangePassword
	Now          func() time.Time
	// OnChanged runs after the new hash is saved, e.g. to end other sessions.
	OnChanged func(accountID string)
}

// ExecuteChangePassword replaces the password of a signed-in account.
// A wrong current password counts as a failed login, so this path cannot be
// used to guess around the login lockout.
// PRE: input fields are non-empty
// POST: on success the new hash is saved, failed logins are cleared and OnChanged ran
// INVARIANT: a locked account is never changed
func ExecuteChangePassword(ctx context.Context, input ChangePasswordInput, deps ChangePasswordDeps) error {
	if err := input.check(); err != nil {
		return err
	}
	now := time.Now()
	if deps.Now != nil {
		now = deps.Now()
	}

	acct, err := deps.AccountStore.GetByID(ctx, input.AccountID)
	if err != nil {
		return fmt.Errorf("account %s: %w", input.AccountID, ErrNotFound)
	}
	if acct.IsLocked(now) {
		slog.Info("auth_event", "event", "password_change_blocked", "account_id", acct.ID, "reason", "locked")
		return ErrAccountLocked
	}

	if acct.CheckPassword(input.CurrentPassword) != nil {
		acct.RecordFailedLogin(now)
		if err := deps.AccountStore.Save(ctx, acct); err != nil {
			slog.Error("auth_event", "event", "failed_login_not_saved", "account_id", acct.ID, "error", err.Error())
		}
		slog.Info("auth_event", "event", "password_change_failed", "account_id", acct.ID, "failed_logins", acct.FailedLogins)
		return ErrCurrentPasswordWrong
	}

	next := acct
	if err := next.SetPassword(input.NewPassword); err != nil {
		return invalid(err)
	}
	next.ResetFailedLogins()
	if err := deps.AccountStore.Save(ctx, next); err != nil {
		return fmt.Errorf("save account %s: %w", acct.ID, err)
	}

	slog.Info("auth_event", "event", "password_changed", "account_id", acct.ID)
	if deps.OnChanged != nil {
		deps.OnChanged(acct.ID)
	}
	return nil
}

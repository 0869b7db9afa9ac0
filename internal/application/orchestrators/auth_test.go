package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"dropin/internal/domain/account"
)

const testPassword = "correct-horse-battery"

func seededAccount(t *testing.T) account.Account {
	t.Helper()
	a := account.Account{ID: "a1", Email: "staff@dropin.test", Role: account.RoleStaff}
	if err := a.SetPassword(testPassword); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestExecuteLogin_Success(t *testing.T) {
	store := newMockAccountStore(seededAccount(t))
	res, err := ExecuteLogin(context.Background(), LoginInput{Email: "staff@dropin.test", Password: testPassword}, LoginDeps{AccountStore: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AccountID != "a1" || res.Role != account.RoleStaff {
		t.Errorf("result = %+v", res)
	}
}

// TestExecuteLogin_LocksAfterFailures verifies the account locks after five wrong passwords.
func TestExecuteLogin_LocksAfterFailures(t *testing.T) {
	store := newMockAccountStore(seededAccount(t))
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	deps := LoginDeps{AccountStore: store, Now: func() time.Time { return now }}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := ExecuteLogin(ctx, LoginInput{Email: "staff@dropin.test", Password: "wrong-password-xx"}, deps)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d err = %v, want ErrInvalidCredentials", i, err)
		}
	}
	if _, err := ExecuteLogin(ctx, LoginInput{Email: "staff@dropin.test", Password: testPassword}, deps); !errors.Is(err, ErrAccountLocked) {
		t.Errorf("err = %v, want ErrAccountLocked", err)
	}

	now = now.Add(16 * time.Minute)
	if _, err := ExecuteLogin(ctx, LoginInput{Email: "staff@dropin.test", Password: testPassword}, deps); err != nil {
		t.Errorf("login after lockout expired: %v", err)
	}
	if store.byEmail["staff@dropin.test"].FailedLogins != 0 {
		t.Error("failed logins should be reset after success")
	}
}

func TestExecuteLogin_UnknownEmail(t *testing.T) {
	_, err := ExecuteLogin(context.Background(), LoginInput{Email: "who@x.test", Password: testPassword}, LoginDeps{AccountStore: newMockAccountStore()})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestExecuteCreateAccount_RejectsDuplicateEmail(t *testing.T) {
	store := newMockAccountStore(seededAccount(t))
	_, err := ExecuteCreateAccount(context.Background(), CreateAccountInput{
		Email: "Staff@DropIn.test", Password: testPassword, Role: account.RoleVolunteer,
	}, CreateAccountDeps{AccountStore: store})
	if !errors.Is(err, ErrEmailAlreadyExists) {
		t.Errorf("err = %v, want ErrEmailAlreadyExists", err)
	}
}

func TestExecuteCreateAccount_ShortPassword(t *testing.T) {
	_, err := ExecuteCreateAccount(context.Background(), CreateAccountInput{
		Email: "v@dropin.test", Password: "short", Role: account.RoleVolunteer,
	}, CreateAccountDeps{AccountStore: newMockAccountStore()})
	if !errors.Is(err, account.ErrPasswordTooShort) {
		t.Errorf("err = %v, want ErrPasswordTooShort", err)
	}
}

func TestExecuteSeedAdmin_OnlyWhenEmpty(t *testing.T) {
	store := newMockAccountStore()
	deps := CreateAccountDeps{AccountStore: store}
	if err := ExecuteSeedAdmin(context.Background(), deps, "admin@dropin.test", testPassword); err != nil {
		t.Fatalf("seed: %v", err)
	}
	a, ok := store.byEmail["admin@dropin.test"]
	if !ok || a.Role != account.RoleAdmin {
		t.Fatalf("admin = %+v, want seeded admin", a)
	}
	if err := ExecuteSeedAdmin(context.Background(), deps, "other@dropin.test", testPassword); err != nil {
		t.Fatal(err)
	}
	if len(store.byEmail) != 1 {
		t.Errorf("accounts = %d, want 1", len(store.byEmail))
	}
}

func TestExecuteChangePassword(t *testing.T) {
	store := newMockAccountStore(seededAccount(t))
	deps := ChangePasswordDeps{AccountStore: store}
	ctx := context.Background()

	err := ExecuteChangePassword(ctx, ChangePasswordInput{AccountID: "a1", CurrentPassword: "nope-nope-nope", NewPassword: "another-long-pass"}, deps)
	if !errors.Is(err, ErrCurrentPasswordWrong) {
		t.Errorf("err = %v, want ErrCurrentPasswordWrong", err)
	}
	if err := ExecuteChangePassword(ctx, ChangePasswordInput{AccountID: "a1", CurrentPassword: testPassword, NewPassword: "another-long-pass"}, deps); err != nil {
		t.Fatalf("change: %v", err)
	}
	a := store.byEmail["staff@dropin.test"]
	if a.CheckPassword("another-long-pass") != nil {
		t.Error("new password should be set")
	}
}

// TestExecuteChangePassword_WrongPasswordCountsTowardLockout verifies the
// change path shares the login lockout.
func TestExecuteChangePassword_WrongPasswordCountsTowardLockout(t *testing.T) {
	store := newMockAccountStore(seededAccount(t))
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	changed := 0
	deps := ChangePasswordDeps{
		AccountStore: store,
		Now:          func() time.Time { return now },
		OnChanged:    func(string) { changed++ },
	}
	ctx := context.Background()
	wrong := ChangePasswordInput{AccountID: "a1", CurrentPassword: "wrong-password-xx", NewPassword: "another-long-pass"}
	right := ChangePasswordInput{AccountID: "a1", CurrentPassword: testPassword, NewPassword: "another-long-pass"}

	for i := 0; i < 5; i++ {
		if err := ExecuteChangePassword(ctx, wrong, deps); !errors.Is(err, ErrCurrentPasswordWrong) {
			t.Fatalf("attempt %d err = %v, want ErrCurrentPasswordWrong", i, err)
		}
	}
	if err := ExecuteChangePassword(ctx, right, deps); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
	if changed != 0 {
		t.Errorf("OnChanged ran %d times before a change", changed)
	}

	now = now.Add(16 * time.Minute)
	if err := ExecuteChangePassword(ctx, right, deps); err != nil {
		t.Fatalf("change after lockout expired: %v", err)
	}
	a := store.byEmail["staff@dropin.test"]
	if a.FailedLogins != 0 || !a.LockedUntil.IsZero() {
		t.Errorf("failed logins = %d, locked until %v; want cleared", a.FailedLogins, a.LockedUntil)
	}
	if changed != 1 {
		t.Errorf("OnChanged ran %d times, want 1", changed)
	}
}

func TestExecuteChangePassword_RejectsInput(t *testing.T) {
	store := newMockAccountStore(seededAccount(t))
	deps := ChangePasswordDeps{AccountStore: store}
	cases := []struct {
		name string
		in   ChangePasswordInput
		want error // nil means a *ValidationError
	}{
		{"missing current", ChangePasswordInput{AccountID: "a1", NewPassword: "another-long-pass"}, nil},
		{"same password", ChangePasswordInput{AccountID: "a1", CurrentPassword: testPassword, NewPassword: testPassword}, ErrNewPasswordSame},
		{"too short", ChangePasswordInput{AccountID: "a1", CurrentPassword: testPassword, NewPassword: "short"}, nil},
		{"unknown account", ChangePasswordInput{AccountID: "zz", CurrentPassword: testPassword, NewPassword: "another-long-pass"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ExecuteChangePassword(context.Background(), tc.in, deps)
			if tc.want == nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("err = %v, want a validation error", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
	staff := store.byEmail["staff@dropin.test"]
	if staff.CheckPassword(testPassword) != nil {
		t.Error("password should be unchanged")
	}
}

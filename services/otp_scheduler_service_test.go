package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stepacool/cursor-hackathon-submission/database/dbtest"
	"github.com/stepacool/cursor-hackathon-submission/models"
)

func TestOTPSchedulerExpireOnce(t *testing.T) {
	store := dbtest.NewStore()
	store.AddOTP(models.OTP{ID: 1, UserID: "alice", Token: "111111", Status: models.OTPStatusPending, ExpiresAt: fixedNow.Add(-time.Minute)})
	store.AddOTP(models.OTP{ID: 2, UserID: "alice", Token: "222222", Status: models.OTPStatusPending, ExpiresAt: fixedNow.Add(time.Minute)})
	store.AddOTP(models.OTP{ID: 3, UserID: "alice", Token: "333333", Status: models.OTPStatusUsed, ExpiresAt: fixedNow.Add(-time.Hour)})

	svc := NewOTPSchedulerService(store, time.Minute)
	svc.now = func() time.Time { return fixedNow }

	n, err := svc.ExpireOnce(context.Background())
	if err != nil {
		t.Fatalf("ExpireOnce() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	otps, _ := store.ListOTPsForUser(context.Background(), "alice")
	want := map[uint]models.OTPStatus{1: models.OTPStatusExpired, 2: models.OTPStatusPending, 3: models.OTPStatusUsed}
	for _, otp := range otps {
		if otp.Status != want[otp.ID] {
			t.Errorf("otp %d status = %s, want %s", otp.ID, otp.Status, want[otp.ID])
		}
	}

	if n, _ := svc.ExpireOnce(context.Background()); n != 0 {
		t.Errorf("second pass expired = %d, want 0", n)
	}
}

type failingExpirer struct{ calls chan struct{} }

func (f failingExpirer) ExpireOTPs(context.Context, time.Time) (int64, error) {
	select {
	case f.calls <- struct{}{}:
	default:
	}
	return 0, errors.New("db down")
}

func TestOTPSchedulerStartStops(t *testing.T) {
	expirer := failingExpirer{calls: make(chan struct{}, 1)}
	svc := NewOTPSchedulerService(expirer, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := svc.Start(ctx)

	select {
	case <-expirer.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not run")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

package infra

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

func TestSelectorFor(t *testing.T) {
	selectors := map[domain.SelectorRole]string{
		domain.RoleBidButton: "  #bidButton ",
		domain.RoleTimer:     "",
	}

	tests := []struct {
		name    string
		role    domain.SelectorRole
		want    string
		wantErr bool
	}{
		{name: "configured, trimmed", role: domain.RoleBidButton, want: "#bidButton"},
		{name: "blank", role: domain.RoleTimer, wantErr: true},
		{name: "missing", role: domain.RoleStatus, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectorFor(selectors, tt.role)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScreenshotPath(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 4, 5, 123456000, time.UTC)

	got := screenshotPath("/tmp/shots", "bid_success", at)
	assert.Equal(t, filepath.Join("/tmp/shots", "bid_success_20240301_100405.123456.png"), got)
}

func TestOpenPlaywrightSurface_RequiresURL(t *testing.T) {
	_, err := OpenPlaywrightSurface(SurfaceConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestPlaywrightSurface_ScreenshotDisabled(t *testing.T) {
	s := &PlaywrightSurface{logger: zap.NewNop()}

	_, err := s.Screenshot("bid_error")
	assert.Error(t, err)
}

func TestPlaywrightSurface_HonoursCancelledContext(t *testing.T) {
	s := &PlaywrightSurface{logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ReadState(ctx, domain.RoleBidButton)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Trigger(ctx, domain.RoleBidButton, time.Second), context.Canceled)
	assert.ErrorIs(t, s.Fill(ctx, domain.RoleSignatureInput, "x"), context.Canceled)
	assert.ErrorIs(t, s.WaitFor(ctx, domain.RoleSignData, time.Second), context.Canceled)
	assert.NoError(t, s.Close())
}

func TestUntilDone_ReturnsWhenContextEndsBeforeCall(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocked := func() error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := untilDone(ctx, blocked)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestUntilDone_ReturnsCallResult(t *testing.T) {
	callErr := errors.New("click failed")

	assert.NoError(t, untilDone(context.Background(), func() error { return nil }))
	assert.ErrorIs(t, untilDone(context.Background(), func() error { return callErr }), callErr)
}

func TestUntilDone_SkipsCallOnDoneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := untilDone(ctx, func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestBoundTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, boundTimeout(context.Background(), 5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	got := boundTimeout(ctx, 5*time.Second)
	assert.LessOrEqual(t, got, 200*time.Millisecond)
	assert.Greater(t, got, time.Duration(0))

	assert.Equal(t, 100*time.Millisecond, boundTimeout(ctx, 100*time.Millisecond))

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	assert.Equal(t, time.Millisecond, boundTimeout(expired, 5*time.Second))
}

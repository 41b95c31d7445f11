package heuristic

import (
	"context"
	"regexp"
	"strings"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// ClockIndicators are zero-valued countdown readings.
// They match whole clock tokens only: a token is a maximal run of digits and
// colons, so neither "01:30:00" nor "100:00" matches "0:00".
var ClockIndicators = []string{
	"00:00:00",
	"0:00:00",
	"00:00",
	"0:00",
}

// TimerPhraseCues are countdown texts sites show once the timer runs out.
var TimerPhraseCues = []string{
	"время вышло",
	"таймер истек",
	"завершено",
	"начало",
	"time is up",
	"time's up",
	"expired",
}

var clockToken = regexp.MustCompile(`[0-9:]+`)

// TimerExpired reports whether a countdown text says the timer has run out.
// Matching is case-insensitive.
func TimerExpired(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}

	for _, run := range clockToken.FindAllString(text, -1) {
		token := strings.Trim(run, ":")
		for _, indicator := range ClockIndicators {
			if token == indicator {
				return true
			}
		}
	}

	for _, cue := range TimerPhraseCues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

// TimerExpiry fires when the countdown element shows an expired timer.
type TimerExpiry struct{}

// NewTimerExpiry creates the timer-expiry heuristic.
func NewTimerExpiry() *TimerExpiry {
	return &TimerExpiry{}
}

func (h *TimerExpiry) Method() domain.DetectionMethod {
	return domain.MethodTimerExpired
}

func (h *TimerExpiry) Role() domain.SelectorRole {
	return domain.RoleTimer
}

func (h *TimerExpiry) Evaluate(ctx context.Context, surface domain.Surface) (bool, error) {
	state, err := surface.ReadState(ctx, domain.RoleTimer)
	if err != nil {
		return false, err
	}
	return TimerExpired(state.Text), nil
}

// Ensure TimerExpiry implements Heuristic.
var _ Heuristic = (*TimerExpiry)(nil)

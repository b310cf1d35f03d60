package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"dip_bot/internal/models"
)

// ErrMalformedState is returned when a persisted record exists but cannot be decoded.
// The process must not trade on a guessed position, so callers treat it as fatal.
var ErrMalformedState = errors.New("malformed persisted state")

// Store persists the single position record of the bot.
// Load returns a fresh state when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*models.PositionState, error)
	Save(ctx context.Context, st *models.PositionState) error
}

type Clock func() time.Time

func decode(b []byte, now time.Time) (*models.PositionState, error) {
	var st models.PositionState
	if err := sonic.Unmarshal(b, &st); err != nil {
		return nil, errors.Join(ErrMalformedState, err)
	}
	if err := validate(&st); err != nil {
		return nil, errors.Join(ErrMalformedState, err)
	}
	st.Normalize(now)
	return &st, nil
}

func encode(st *models.PositionState) ([]byte, error) {
	return sonic.Marshal(st)
}

func validate(st *models.PositionState) error {
	for i, e := range st.Entries {
		if e.Price <= 0 || e.Size <= 0 {
			return fmt.Errorf("entry %d: non-positive price or size", i)
		}
	}
	if st.LastResetDate != "" {
		if _, err := time.Parse(models.DateLayout, st.LastResetDate); err != nil {
			return fmt.Errorf("last_reset_date: %w", err)
		}
	}
	return nil
}

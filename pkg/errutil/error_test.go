package errutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelMatching(t *testing.T) {
	sentinel := New(StatusConflict, "duplicate event")

	require.ErrorIs(t, sentinel, sentinel)
	require.ErrorIs(t, New(StatusConflict, "duplicate event"), sentinel)
	require.ErrorIs(t, fmt.Errorf("record txn: %w", sentinel), sentinel)

	// Details and wrapped causes must not break matching.
	detailed := New(StatusConflict, "duplicate event",
		WithDetails(Detail{Field: "external_ref", Message: "already recorded"}),
		WithErr(errors.New("unique violation")))
	require.ErrorIs(t, detailed, sentinel)

	require.NotErrorIs(t, New(StatusConflict, "withdrawal is not pending"), sentinel)
	require.NotErrorIs(t, New(StatusNotFound, "duplicate event"), sentinel)
	require.NotErrorIs(t, errors.New("duplicate event"), sentinel)
}

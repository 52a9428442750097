package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitions(t *testing.T) {
	all := []Status{StatusPendingPayment, StatusConfirmed, StatusCompleted, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPendingPayment, StatusConfirmed}: true,
		{StatusPendingPayment, StatusCancelled}: true,
		{StatusConfirmed, StatusCompleted}:      true,
		{StatusConfirmed, StatusCancelled}:      true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)

			err := ValidateTransition(from, to)
			if want {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestTerminalStatusMessages(t *testing.T) {
	err := ValidateTransition(StatusCompleted, StatusCancelled)
	assert.ErrorContains(t, err, "completed appointments cannot be modified")

	err = ValidateTransition(StatusCancelled, StatusConfirmed)
	assert.ErrorContains(t, err, "already cancelled")

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("CONFIRMED")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, st)

	_, err = ParseStatus("confirmed")
	assert.Error(t, err)
}

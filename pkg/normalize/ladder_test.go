package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLadder_FirstSuccessWins(t *testing.T) {
	var called []string
	step := func(name string, err error) Step[int] {
		return Step[int]{Name: name, Attempt: func() (int, error) {
			called = append(called, name)
			return len(called), err
		}}
	}

	got, name, err := RunLadder([]Step[int]{
		step("one", errors.New("bad")),
		step("two", nil),
		step("three", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Equal(t, "two", name)
	assert.Equal(t, []string{"one", "two"}, called)
}

func TestRunLadder_AllFail(t *testing.T) {
	first := errors.New("first")
	_, name, err := RunLadder([]Step[string]{
		{Name: "a", Attempt: func() (string, error) { return "", first }},
		{Name: "b", Attempt: func() (string, error) { return "", errors.New("second") }},
	})
	assert.Empty(t, name)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.ErrorIs(t, err, first)
	assert.Contains(t, err.Error(), "b: second")
}

func TestRunLadder_Empty(t *testing.T) {
	_, _, err := RunLadder[int](nil)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

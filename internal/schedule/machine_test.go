package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseboard/internal/domain"
	"pulseboard/internal/schedule"
)

func TestMachineTransitions(t *testing.T) {
	m, err := schedule.NewMachine("cfg-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigPaused, m.Current())

	require.NoError(t, m.Fire(schedule.EventActivate))
	assert.Equal(t, domain.ConfigActive, m.Current())

	// repeated activate is a no-op
	require.NoError(t, m.Fire(schedule.EventActivate))
	assert.Equal(t, domain.ConfigActive, m.Current())

	require.NoError(t, m.Fire(schedule.EventPause))
	assert.Equal(t, domain.ConfigPaused, m.Current())

	assert.Error(t, m.Fire("archive"))
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	_, err := schedule.Transition("cfg-1", "deleted", schedule.EventActivate)
	assert.Error(t, err)

	status, err := schedule.Transition("cfg-1", domain.ConfigActive, schedule.EventPause)
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigPaused, status)
}

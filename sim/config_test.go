package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortMode_Flags(t *testing.T) {
	tests := []struct {
		mode        SortMode
		eventsFirst bool
		addlFirst   bool
	}{
		{1, false, true},
		{2, false, false},
		{3, true, true},
		{4, true, false},
	}
	for _, tt := range tests {
		assert.True(t, tt.mode.Valid())
		assert.Equal(t, tt.eventsFirst, tt.mode.EventsFirst(), "mode %d", tt.mode)
		assert.Equal(t, tt.addlFirst, tt.mode.AddlFirst(), "mode %d", tt.mode)
	}
	assert.False(t, SortMode(0).Valid())
	assert.False(t, SortMode(5).Valid())
}

func TestDefaultOptions_Valid(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
}

func TestOptions_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options)
		want   error
	}{
		{"sort mode", func(o *Options) { o.RecordSortMode = 0 }, ErrSortMode},
		{"digits", func(o *Options) { o.Digits = -1 }, ErrOptions},
		{"mindt", func(o *Options) { o.MinimumTimeStep = -1e-6 }, ErrOptions},
		{"rtol", func(o *Options) { o.Integrator.RTol = 0 }, ErrOptions},
		{"hmax", func(o *Options) { o.Integrator.HMax = -1 }, ErrOptions},
		{"maxsteps", func(o *Options) { o.Integrator.MaxSteps = 0 }, ErrOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			assert.ErrorIs(t, o.Validate(), tt.want)
		})
	}
}

func TestOptions_NegativeTimeScale_Accepted(t *testing.T) {
	o := DefaultOptions()
	o.TimeScale = -1
	assert.NoError(t, o.Validate())
}

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/smartstore-copilot/internal/config"
)

func TestHealthConfig(t *testing.T) {
	cfg := &config.Config{
		DataDir:              "data",
		DegradedWindow:       time.Minute,
		DegradedErrorPct:     50,
		CityMaxLength:        100,
		OverloadWindow:       30 * time.Second,
		OverloadThresholdPct: 80,
		RateLimitRPS:         5,
	}

	hc := healthConfig(cfg)

	assert.Equal(t, "data", hc.DataDir)
	assert.Equal(t, time.Minute, hc.DegradedWindow)
	assert.Equal(t, 50, hc.DegradedErrorPct)
	assert.Equal(t, 100, hc.CityMaxLength)
	assert.Equal(t, 30*time.Second, hc.OverloadWindow)
	assert.Equal(t, 80, hc.OverloadThresholdPct)
	assert.Equal(t, 5, hc.RateLimitRPS)
}

func TestNewLimiter(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		assert.Nil(t, newLimiter(&config.Config{RateLimitRPS: 0, RateLimitBurst: 10}))
	})

	t.Run("rate and burst", func(t *testing.T) {
		l := newLimiter(&config.Config{RateLimitRPS: 5, RateLimitBurst: 2})
		require.NotNil(t, l)
		assert.Equal(t, rate.Limit(5), l.Limit())
		assert.Equal(t, 2, l.Burst())
		assert.True(t, l.Allow())
		assert.True(t, l.Allow())
		assert.False(t, l.Allow(), "burst exhausted")
	})
}

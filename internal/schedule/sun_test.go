package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSunTimes_SunsetBeforeSunriseNextMorning(t *testing.T) {
	site := SiteLocation{Latitude: 37.06, Longitude: -2.55, ElevationM: 2168}
	night := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	sunset, sunrise := SunTimes(site, night)

	assert.Equal(t, 2026, sunset.Year())
	assert.True(t, sunset.Hour() >= 17 && sunset.Hour() <= 23, "July sunset at this longitude should land in the evening UTC hours, got %v", sunset)
	assert.True(t, sunrise.Before(sunset) || sunrise.Equal(sunset), "the returned sunrise is the same calendar day's morning event, before that evening's sunset")
}

func TestSunTimes_EquatorHasRoughlyTwelveHourDay(t *testing.T) {
	site := SiteLocation{Latitude: 0, Longitude: 0, ElevationM: 0}
	night := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	sunset, sunrise := SunTimes(site, night)
	dayLength := sunset.Sub(sunrise)

	assert.InDelta(t, 12*time.Hour, dayLength, float64(20*time.Minute), "near the equinox at the equator, day length should be close to 12h")
}

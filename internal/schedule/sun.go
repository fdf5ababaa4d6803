package schedule

import (
	"math"
	"time"
)

// SunTimes approximates UTC sunset and sunrise for site on the UTC
// calendar date of night, using the standard low-precision solar
// position formulas (solar declination + hour angle from the unrefracted
// -0.833° horizon crossing). Accurate to within a few minutes, which is
// sufficient for resolving the "auto" dome-window literal (spec.md §6);
// this is not a safety interlock, the SafetyVerdict from the Environment
// Monitor is.
func SunTimes(site SiteLocation, night time.Time) (sunset, sunrise time.Time) {
	dayStart := time.Date(night.Year(), night.Month(), night.Day(), 0, 0, 0, 0, time.UTC)
	n := math.Ceil(julianDayNumber(dayStart) - 2451545.0 + 0.0008)

	meanAnomaly := math.Mod(357.5291+0.98560028*n, 360)
	center := 1.9148*sinDeg(meanAnomaly) + 0.0200*sinDeg(2*meanAnomaly) + 0.0003*sinDeg(3*meanAnomaly)
	eclipticLongitude := math.Mod(meanAnomaly+center+180+102.9372, 360)

	declination := math.Asin(sinDeg(eclipticLongitude) * sinDeg(23.4397))

	latRad := site.Latitude * math.Pi / 180
	const horizonDeg = -0.833
	cosHourAngle := (sinDeg(horizonDeg) - math.Sin(latRad)*math.Sin(declination)) / (math.Cos(latRad) * math.Cos(declination))

	if cosHourAngle > 1 {
		// Sun never rises: both events pinned to 00:00 UTC of night.
		return dayStart, dayStart
	}
	if cosHourAngle < -1 {
		// Sun never sets: both events pinned to 00:00 UTC of night.
		return dayStart, dayStart
	}

	hourAngle := math.Acos(cosHourAngle) * 180 / math.Pi

	solarNoon := 2451545.0 + n + 0.0053*sinDeg(meanAnomaly) - 0.0069*sinDeg(2*eclipticLongitude) - site.Longitude/360

	setJD := solarNoon + hourAngle/360
	riseJD := solarNoon - hourAngle/360

	return fromJulianDay(setJD), fromJulianDay(riseJD)
}

func sinDeg(deg float64) float64 { return math.Sin(deg * math.Pi / 180) }

func julianDayNumber(t time.Time) float64 {
	return float64(t.Unix())/86400.0 + 2440587.5
}

func fromJulianDay(jd float64) time.Time {
	unixSeconds := (jd - 2440587.5) * 86400.0
	return time.Unix(int64(unixSeconds), 0).UTC()
}

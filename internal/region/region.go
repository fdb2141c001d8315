// Package region picks the broadcast FM deemphasis time constant for the
// local region from the system timezone.
package region

import (
	"strings"

	tz "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// Deemphasis time constants in microseconds.
const (
	Deemphasis50 = 50.0
	Deemphasis75 = 75.0
)

// Deemphasis returns the local deemphasis in µs. It falls back to 50 µs when
// the timezone cannot be resolved.
func Deemphasis() float64 {
	timezone, err := tzlocal.RuntimeTZ()
	if err != nil {
		return Deemphasis50
	}
	return DeemphasisForTimezone(timezone)
}

// DeemphasisForTimezone returns the deemphasis for an IANA timezone name.
func DeemphasisForTimezone(timezone string) float64 {
	if timezone == "UTC" || timezone == "GMT" || strings.HasPrefix(timezone, "Etc/") {
		return Deemphasis50
	}

	tzMap, err := tz.NewTimezoneCountryMap()
	if err != nil {
		return Deemphasis50
	}
	country, err := tzMap.GetCountry(timezone)
	if err != nil {
		return Deemphasis50
	}
	return deemphasisForCountry(country)
}

func deemphasisForCountry(country string) float64 {
	if us75Countries[country] {
		return Deemphasis75
	}
	return Deemphasis50
}

// us75Countries use 75 µs. Everyone else uses 50 µs.
var us75Countries = map[string]bool{
	"United States": true,
	"Canada":        true,
	"Mexico":        true,

	"Belize":      true,
	"Costa Rica":  true,
	"El Salvador": true,
	"Guatemala":   true,
	"Honduras":    true,
	"Nicaragua":   true,
	"Panama":      true,

	"Bahamas":             true,
	"Dominican Republic":  true,
	"Haiti":               true,
	"Jamaica":             true,
	"Puerto Rico":         true,
	"U.S. Virgin Islands": true,

	"Colombia":  true,
	"Ecuador":   true,
	"Peru":      true,
	"Venezuela": true,

	"South Korea": true,
	"Taiwan":      true,
	"Philippines": true,

	"Guam":           true,
	"American Samoa": true,
}

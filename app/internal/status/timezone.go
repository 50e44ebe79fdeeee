package status

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"storewatch/app/internal/models"
)

// DefaultTimezone is the zone down-windows are displayed in
const DefaultTimezone = "Europe/London"

// DisplayFunc renders a UTC timestamp for display
type DisplayFunc func(t time.Time) string

// DisplayIn returns a DisplayFunc that converts timestamps into the named zone
func DisplayIn(name string) (DisplayFunc, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return func(t time.Time) string {
		return t.In(loc).Format(models.DisplayLayout)
	}, nil
}

// DisplayUTC formats timestamps without zone conversion
func DisplayUTC(t time.Time) string {
	return t.UTC().Format(models.DisplayLayout)
}

// LondonDisplay is the default display conversion
var LondonDisplay = mustDisplay(DefaultTimezone)

func mustDisplay(name string) DisplayFunc {
	f, err := DisplayIn(name)
	if err != nil {
		panic(err)
	}
	return f
}

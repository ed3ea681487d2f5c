package enricher

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ifrog800/StravaAddon/pkg/formatter"
	"github.com/ifrog800/StravaAddon/pkg/strava"
)

// splitsHeader opens the lap-splits section of the description.
const splitsHeader = "🏁 Splits:"

// paceUnavailable replaces pace fields for laps with zero or missing speed.
const paceUnavailable = "n/a"

// BuildSplits renders one line per lap, in original order: zero-padded
// index, distance, elapsed and moving time, and pace per km and per mile.
// Laps without a usable speed keep their line but get placeholder paces.
func BuildSplits(laps []strava.Lap) string {
	if len(laps) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(splitsHeader)
	for _, lap := range laps {
		paceKm, err := formatter.Pace(formatter.MetersPerKm, lap.AverageSpeed)
		if err != nil {
			slog.Warn("Lap has no usable speed for pace", "lap_index", lap.LapIndex, "error", err)
			paceKm = paceUnavailable
		}
		paceMile, err := formatter.Pace(formatter.MetersPerMile, lap.AverageSpeed)
		if err != nil {
			paceMile = paceUnavailable
		}

		fmt.Fprintf(&b, "\nLap %s: %s | %s elapsed | %s moving | %s/km | %s/mi",
			formatter.ZeroPad(lap.LapIndex, 2),
			formatter.Distance(lap.Distance),
			formatter.Duration(lap.ElapsedTime),
			formatter.Duration(lap.MovingTime),
			paceKm,
			paceMile,
		)
	}
	return b.String()
}

package strava

// Lap is the sub-segment projection the splits stage reads.
type Lap struct {
	LapIndex     int     `json:"lap_index"`
	Distance     float64 `json:"distance"`
	ElapsedTime  int     `json:"elapsed_time"`
	MovingTime   int     `json:"moving_time"`
	AverageSpeed float64 `json:"average_speed"`
}

// Activity is the read-only projection of the remote record used by the
// pipeline. It is fetched fresh per job and never cached beyond the job's
// lifetime except as the raw audit snapshot.
type Activity struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Type         string    `json:"type"`
	StartDate    string    `json:"start_date"`
	StartLatLng  []float64 `json:"start_latlng"`
	EndLatLng    []float64 `json:"end_latlng"`
	Laps         []Lap     `json:"laps"`
	Commute      bool      `json:"commute"`
	Trainer      bool      `json:"trainer"`
	HideFromHome bool      `json:"hide_from_home"`
	GearID       string    `json:"gear_id"`
}

// HasCoordinates reports whether both start and end positions are present.
func (a *Activity) HasCoordinates() bool {
	return len(a.StartLatLng) == 2 && len(a.EndLatLng) == 2
}

// Summary is one entry of the athlete's recent-activities listing.
type Summary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// UpdateRequest is the PUT body for an activity update. All pass-through
// fields must carry the fetched values unchanged.
type UpdateRequest struct {
	Commute      bool   `json:"commute"`
	Trainer      bool   `json:"trainer"`
	HideFromHome bool   `json:"hide_from_home"`
	Description  string `json:"description"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	GearID       string `json:"gear_id"`
}

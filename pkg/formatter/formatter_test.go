package formatter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroPad(t *testing.T) {
	assert.Equal(t, "01", ZeroPad(1, 2))
	assert.Equal(t, "10", ZeroPad(10, 2))
	assert.Equal(t, "007", ZeroPad(7, 3))
	assert.Equal(t, "123", ZeroPad(123, 2))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "0:00", Duration(0))
	assert.Equal(t, "0:59", Duration(59))
	assert.Equal(t, "4:35", Duration(275))
	assert.Equal(t, "59:59", Duration(3599))
	assert.Equal(t, "1:00:00", Duration(3600))
	assert.Equal(t, "2:05:07", Duration(7507))
	assert.Equal(t, "0:00", Duration(-5))
}

func TestPace(t *testing.T) {
	// 5 m/s -> 200 s/km -> 3:20
	p, err := Pace(MetersPerKm, 5.0)
	require.NoError(t, err)
	assert.Equal(t, "3:20", p)

	// 5 m/s -> 321.9 s/mile -> 5:22
	p, err = Pace(MetersPerMile, 5.0)
	require.NoError(t, err)
	assert.Equal(t, "5:22", p)

	// Slow enough to cross the hour boundary: 0.25 m/s -> 4000 s/km
	p, err = Pace(MetersPerKm, 0.25)
	require.NoError(t, err)
	assert.Equal(t, "1:06:40", p)
}

func TestPaceBadSpeed(t *testing.T) {
	for _, speed := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Pace(MetersPerKm, speed)
		assert.ErrorIs(t, err, ErrNoSpeed)
	}
}

func TestCompass(t *testing.T) {
	cases := map[float64]string{
		0:    "N",
		360:  "N",
		44:   "NE",
		45:   "NE",
		46:   "NE",
		90:   "E",
		135:  "SE",
		180:  "S",
		225:  "SW",
		270:  "W",
		315:  "NW",
		337:  "NW",
		338:  "N",
		-90:  "W",
		450:  "E",
		-405: "NW",
	}
	for degrees, want := range cases {
		assert.Equal(t, want, Compass(degrees), "degrees=%v", degrees)
	}
}

func TestCompassFallback(t *testing.T) {
	assert.Equal(t, "?", Compass(math.NaN()))
	assert.Equal(t, "?", Compass(math.Inf(-1)))
}

func TestDistance(t *testing.T) {
	assert.Equal(t, "1.00 km", Distance(1000))
	assert.Equal(t, "5.03 km", Distance(5030))
}

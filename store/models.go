package store

import "time"

// MediaItem is a stored asset in the shared library. The same item may be
// referenced by any number of timeline entries across machines.
type MediaItem struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Duration int    `json:"time"`
}

// TimelineEntry is one scheduled slot on one machine's advertisement
// timeline. Positions within a machine form a contiguous 0..N-1 run.
type TimelineEntry struct {
	ID        int64  `json:"id"`
	MachineID int64  `json:"machine_id"`
	MediaID   int64  `json:"media_id"`
	Path      string `json:"path"`
	Type      string `json:"type"`
	Duration  int    `json:"time"`
	Position  int    `json:"order"`
}

// PositionUpdate pairs an entry id with its new zero-based position for a
// bulk reorder.
type PositionUpdate struct {
	ID       int64 `json:"id"`
	Position int   `json:"ads_order"`
}

type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Machine struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customer_id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
}

// SensorReading is one snapshot reported by a machine.
type SensorReading struct {
	MachineID  int64     `json:"machine_id"`
	Temp       float64   `json:"temp"`
	Humidity   float64   `json:"humidity"`
	CO2        float64   `json:"co2"`
	PM25       float64   `json:"pm25"`
	PM10       float64   `json:"pm10"`
	TVOC       float64   `json:"tvoc"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AQI maps the PM2.5 concentration onto the EPA index scale.
func (r SensorReading) AQI() int {
	type bp struct {
		cLo, cHi float64
		iLo, iHi int
	}
	breakpoints := []bp{
		{0.0, 12.0, 0, 50},
		{12.1, 35.4, 51, 100},
		{35.5, 55.4, 101, 150},
		{55.5, 150.4, 151, 200},
		{150.5, 250.4, 201, 300},
		{250.5, 500.4, 301, 500},
	}
	c := r.PM25
	if c < 0 {
		c = 0
	}
	for _, b := range breakpoints {
		if c <= b.cHi {
			if c < b.cLo {
				c = b.cLo
			}
			return int(float64(b.iLo) + (c-b.cLo)/(b.cHi-b.cLo)*float64(b.iHi-b.iLo) + 0.5)
		}
	}
	return 500
}

// DisplaySettings controls the alternating kiosk display for one machine.
type DisplaySettings struct {
	MachineID           int64 `json:"machine_id"`
	HVACDurationSeconds int   `json:"hvac_duration_seconds"`
	Enabled             bool  `json:"enabled"`
}

// Package models tracks all api models for request and responses
package models

import (
	"time"

	"github.com/airpulse/console/store"
)

// ResOK is the mutation success sentinel carried in the res field. Any
// other value is the server's error message verbatim.
const ResOK = "true"

// ErrExpiredToken is the session-expiry sentinel; every endpoint reports
// an invalid or expired session with exactly this error body.
const ErrExpiredToken = "Expired token"

type MediaListResponse struct {
	Items []store.MediaItem `json:"items"`
}

// MutationResponse covers every action-style POST on the media_library and
// advertisment resources.
type MutationResponse struct {
	Res          string `json:"res"`
	ID           int64  `json:"id,omitempty"`
	Path         string `json:"path,omitempty"`
	Type         string `json:"type,omitempty"`
	Name         string `json:"name,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Time         int    `json:"time,omitempty"`
	AddedCount   int    `json:"added_count,omitempty"`
	UpdatedCount int    `json:"updated_count,omitempty"`
	RemovedCount int    `json:"removed_count,omitempty"`
}

type AdListResponse struct {
	Items []store.TimelineEntry `json:"items"`
}

type ChunkResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	ID      int64  `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
	Type    string `json:"type,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Time    int    `json:"time,omitempty"`
}

type CustomerListResponse struct {
	Customers []store.Customer `json:"customers"`
}

type MachineListResponse struct {
	Machines []store.Machine `json:"machines"`
}

type CreateCustomerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
}

type CreateMachineRequest struct {
	CustomerID int64  `json:"customer_id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Location   string `json:"location"`
}

type RelaysResponse struct {
	MachineID int64           `json:"machine_id"`
	Relays    map[string]bool `json:"relays"`
}

type DashboardResponse struct {
	MachineID  int64     `json:"machine_id"`
	Temp       float64   `json:"temp"`
	Humidity   float64   `json:"humidity"`
	CO2        float64   `json:"co2"`
	PM25       float64   `json:"pm25"`
	PM10       float64   `json:"pm10"`
	TVOC       float64   `json:"tvoc"`
	AQI        int       `json:"aqi"`
	RecordedAt time.Time `json:"recorded_at"`
}

type ReadingRequest struct {
	MachineID int64 `json:"machine_id" binding:"required"`

	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	CO2      float64 `json:"co2"`
	PM25     float64 `json:"pm25"`
	PM10     float64 `json:"pm10"`
	TVOC     float64 `json:"tvoc"`
}

type ReportResponse struct {
	MachineID int64                 `json:"machine_id"`
	Readings  []store.SensorReading `json:"readings"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

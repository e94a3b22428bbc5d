package models

import "time"

// Observation is the upstream current-weather reading for one location.
type Observation struct {
	Location    string
	Condition   string // e.g. "Rain", "Clear"
	Description string // e.g. "light rain"
	Temperature float64
	Humidity    int
	WindSpeed   float64
	Timestamp   time.Time
}

// WeatherResult is the weather proxy response for a requested city.
type WeatherResult struct {
	City        string  `json:"city"`
	Condition   string  `json:"status"`
	Description string  `json:"description"`
	Temperature float64 `json:"temperature"`
	Alert       bool    `json:"alert"`
}

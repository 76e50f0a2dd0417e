package models

import "time"

// Tree represents one physical tree observed across imagery.
type Tree struct {
	TreeID    string    `json:"tree_id"`
	TreeType  string    `json:"tree_type"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	HeightEst *float64  `json:"height_est,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

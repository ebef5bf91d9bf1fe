package models

import "time"

type LocationPermission string

const (
	PermissionGranted LocationPermission = "granted"
	PermissionDenied  LocationPermission = "denied"
)

// LocationFix - последнее местоположение, присланное клиентом
type LocationFix struct {
	UserID     string             `json:"user_id"`
	Coordinate *Coordinate        `json:"coordinate,omitempty"`
	Permission LocationPermission `json:"permission"`
	ReportedAt time.Time          `json:"reported_at"`
}

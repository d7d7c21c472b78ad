package domain

type TravelMode string

const (
	ModeDriving   TravelMode = "driving"
	ModeWalking   TravelMode = "walking"
	ModeBicycling TravelMode = "bicycling"
	ModeTransit   TravelMode = "transit"
)

// Route is a directions result as shared between room members.
// Points carries the encoded polyline; Duration and Distance are the
// display strings the directions service returned.
type Route struct {
	Points   string     `json:"points"`
	Duration string     `json:"duration"`
	Distance string     `json:"distance"`
	Mode     TravelMode `json:"mode"`
}

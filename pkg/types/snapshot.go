package types

// StateSnapshot is the ALL_STATE payload pushed once after calibration.
//
//	images:   Image[]
//	people:   string[]
//	training: boolean
type StateSnapshot struct {
	Images   []Image  `json:"images"`
	People   []string `json:"people"`
	Training bool     `json:"training"`
}

// Image is a gallery entry as the server expects to reload it.
type Image struct {
	Hash           string    `json:"hash"`
	Identity       int       `json:"identity"`
	Image          string    `json:"image,omitempty"` // data URL
	Representation []float64 `json:"representation"`
}

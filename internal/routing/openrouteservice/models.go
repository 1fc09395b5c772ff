package openrouteservice

// orsMatrixRequest represents the ORS matrix API request body.
type orsMatrixRequest struct {
	Locations    [][]float64 `json:"locations"`
	Sources      []int       `json:"sources"`
	Destinations []int       `json:"destinations"`
	Metrics      []string    `json:"metrics"`
	Units        string      `json:"units"`
}

// orsMatrixResponse represents the ORS matrix API response.
type orsMatrixResponse struct {
	Durations [][]*float64 `json:"durations"` // Seconds; null for unreachable pairs
	Metadata  *metadata    `json:"metadata,omitempty"`
}

// metadata contains response metadata.
type metadata struct {
	Attribution string `json:"attribution,omitempty"`
	Service     string `json:"service,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// orsErrorResponse represents an error response from ORS.
type orsErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Info string `json:"info,omitempty"`
}

// ORS error codes for error mapping.
const (
	orsErrorCodeInvalidParam = 6003 // Invalid matrix parameter
)

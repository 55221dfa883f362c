package globalbus

// Trip is one Grid/List item: a scheduled trip with its realized data.
// Field names mirror the upstream JSON, including the misspelled
// RealdArrivalDate the API has always returned.
type Trip struct {
	LineIntegrationCode    string   `json:"LineIntegrationCode"`
	EstimatedDepartureDate string   `json:"EstimatedDepartureDate"`
	EstimatedArrivalDate   string   `json:"EstimatedArrivalDate"`
	RealDepartureDate      string   `json:"RealDepartureDate"`
	RealArrivalDate        string   `json:"RealdArrivalDate"`
	RouteIntegrationCode   string   `json:"RouteIntegrationCode"`
	RouteName              string   `json:"RouteName"`
	DirectionName          string   `json:"DirectionName"`
	Shift                  string   `json:"Shift"`
	EstimatedVehicle       string   `json:"EstimatedVehicle"`
	RealVehicle            string   `json:"RealVehicle"`
	EstimatedDistance      *float64 `json:"EstimatedDistance"`
	TravelledDistance      *float64 `json:"TravelledDistance"`
	ClientName             *string  `json:"ClientName"`
	IsTripCanceled         bool     `json:"IsTripCanceled"`
}

// Position is one GPS fix from HistoryPosition/List. Odometer and
// EventDate are optional; samples missing either are useless for
// odometer inference and get filtered out by callers.
type Position struct {
	Odometer  *float64 `json:"Odometer,omitempty"`
	EventDate string   `json:"EventDate,omitempty"`
	Velocity  float64  `json:"Velocity"`
	Latitude  float64  `json:"Latitude,omitempty"`
	Longitude float64  `json:"Longitude,omitempty"`
}

// NonConformity is one TripsWithNonConformity item: a trip the upstream
// flagged as deviating from its schedule beyond tolerance.
type NonConformity struct {
	LineName    string `json:"LineName"`
	RouteName   string `json:"RouteName"`
	Direction   string `json:"Direction"`
	RealVehicle string `json:"RealVehicle"`
	EvidenceURL string `json:"EvidenceUrl"`
}

// gridFilter is one predicate in the Grid/List filter array.
type gridFilter struct {
	PropertyName string `json:"PropertyName"`
	Condition    string `json:"Condition"`
	Value        string `json:"Value"`
}

// positionRequest is the HistoryPosition/List request body.
type positionRequest struct {
	TrackedUnitType            int    `json:"TrackedUnitType"`
	TrackedUnitIntegrationCode string `json:"TrackedUnitIntegrationCode"`
	StartDatePosition          string `json:"StartDatePosition"`
	EndDatePosition            string `json:"EndDatePosition"`
}

// nonConformityRequest is the TripsWithNonConformity request body.
type nonConformityRequest struct {
	ClientIntegrationCode string `json:"ClientIntegrationCode"`
	InitialDate           string `json:"InitialDate"`
	FinalDate             string `json:"FinalDate"`
	DelayTolerance        int    `json:"DelayTolerance"`
	EarlinessTolerance    int    `json:"EarlinessTolerance"`
	InconformityType      int    `json:"InconformityType"`
}

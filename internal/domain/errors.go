package domain

import "errors"

// Error kinds raised at stage boundaries. Callers match them with errors.Is;
// the wrapping message carries the offending date, column or partition.
var (
	// ErrConfiguration reports invalid construction parameters.
	ErrConfiguration = errors.New("configuration error")

	// ErrRange reports a requested date that is absent from the data.
	ErrRange = errors.New("range error")

	// ErrDataIntegrity reports a required column or value missing from an
	// input table.
	ErrDataIntegrity = errors.New("data integrity error")
)

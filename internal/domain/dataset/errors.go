package dataset

import "errors"

var (
	ErrEmpty          = errors.New("dataset is empty")
	ErrMetadataFormat = errors.New("metadata is neither JSON Lines nor a JSON array")
)

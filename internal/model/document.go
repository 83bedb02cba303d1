package model

import (
	"encoding/json"

	"github.com/healtheasy/booking-engine/internal/store"
	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
)

// Encode converts an entity to its stored document form. The JSON tags on
// the entity types define the persisted field names, which are part of the
// external contract.
func Encode(v interface{}) (store.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	var doc store.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.Internal(err)
	}
	return doc, nil
}

// Decode converts a stored document into an entity.
func Decode(doc store.Document, v interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

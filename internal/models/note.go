// Package models defines the domain types for Local Native.
package models

import (
	"encoding/hex"
	"encoding/json"
)

// Note is a captured bookmark with its annotations.
//
// Annotations holds opaque bytes: UTF-8 text for plain inserts, raw PNG data
// for image inserts. JSON output renders them hex-encoded.
type Note struct {
	RowID       int64  `json:"rowid"`
	UUID4       string `json:"uuid4"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Tags        string `json:"tags"`
	Description string `json:"description"`
	Comments    string `json:"comments"`
	Annotations []byte `json:"annotations"`
	CreatedAt   string `json:"created_at"`
	IsPublic    bool   `json:"is_public"`
}

type noteJSON Note

// MarshalJSON renders annotations as a hex string.
func (n Note) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		noteJSON
		Annotations string `json:"annotations"`
	}{
		noteJSON:    noteJSON(n),
		Annotations: hex.EncodeToString(n.Annotations),
	})
}

// UnmarshalJSON accepts the hex form produced by MarshalJSON.
func (n *Note) UnmarshalJSON(data []byte) error {
	var aux struct {
		noteJSON
		Annotations string `json:"annotations"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*n = Note(aux.noteJSON)
	if aux.Annotations == "" {
		n.Annotations = nil
		return nil
	}
	raw, err := hex.DecodeString(aux.Annotations)
	if err != nil {
		return err
	}
	n.Annotations = raw
	return nil
}

// KV is one bucket of a day or tag histogram.
type KV struct {
	K string `json:"k"`
	V int64  `json:"v"`
}

// QueryResult is the response of every listing command.
type QueryResult struct {
	Count int64  `json:"count"`
	Notes []Note `json:"notes"`
	Days  []KV   `json:"days"`
	Tags  []KV   `json:"tags"`
}

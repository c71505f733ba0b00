// Package sidecar reads and writes the per-asset XML descriptor placed next
// to organised media. Sidecars carry enough detail to rebuild hub identity
// and canonical values from the data root alone.
package sidecar

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Descriptor is the on-disk XML document.
type Descriptor struct {
	XMLName       xml.Name         `xml:"hubwardAsset"`
	SchemaVersion int              `xml:"schemaVersion,attr"`
	ContentHash   string           `xml:"contentHash"`
	HubName       string           `xml:"hub>displayName"`
	UniverseID    string           `xml:"hub>universeId,omitempty"`
	MediaType     string           `xml:"work>mediaType"`
	SequenceIndex *int             `xml:"work>sequenceIndex,omitempty"`
	FormatLabel   string           `xml:"edition>formatLabel,omitempty"`
	Canonical     []CanonicalEntry `xml:"canonicalValues>value"`
	IngestedAt    time.Time        `xml:"ingestedAt"`
	WrittenAt     time.Time        `xml:"writtenAt"`
}

// CanonicalEntry is one canonical key/value pair.
type CanonicalEntry struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// CurrentSchemaVersion is the descriptor format version.
const CurrentSchemaVersion = 1

// Marshal renders the descriptor as an XML document.
func Marshal(d *Descriptor) ([]byte, error) {
	if d.SchemaVersion == 0 {
		d.SchemaVersion = CurrentSchemaVersion
	}
	if d.WrittenAt.IsZero() {
		d.WrittenAt = time.Now().UTC()
	}
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode sidecar: %w", err)
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// Unmarshal parses a descriptor document.
func Unmarshal(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := xml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}
	if strings.TrimSpace(d.ContentHash) == "" {
		return nil, fmt.Errorf("sidecar missing content hash")
	}
	return &d, nil
}

// CanonicalMap converts the entries to a map keyed by claim key.
func (d *Descriptor) CanonicalMap() map[string]string {
	values := make(map[string]string, len(d.Canonical))
	for _, entry := range d.Canonical {
		values[entry.Key] = entry.Value
	}
	return values
}

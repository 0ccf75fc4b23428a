package domain

import (
	"bytes"
	"encoding/json"
)

// BuildRecord is one raw structured message emitted by an image build
// stream. It is kept verbatim so that the persisted build log matches what
// the daemon sent.
type BuildRecord json.RawMessage

// NewBuildRecord wraps one line of build output. Lines that are not valid
// JSON are stored as JSON strings so the log stays a well-formed array.
func NewBuildRecord(line []byte) BuildRecord {
	line = bytes.TrimSpace(line)
	if json.Valid(line) {
		return BuildRecord(bytes.Clone(line))
	}
	quoted, _ := json.Marshal(string(line))
	return BuildRecord(quoted)
}

// MarshalJSON returns the record unchanged.
func (r BuildRecord) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// UnmarshalJSON stores a copy of data.
func (r *BuildRecord) UnmarshalJSON(data []byte) error {
	*r = BuildRecord(bytes.Clone(data))
	return nil
}

// BuildMessage is the decoded view of a build record.
type BuildMessage struct {
	Stream string    `json:"stream,omitempty"`
	Error  string    `json:"error,omitempty"`
	Aux    *BuildAux `json:"aux,omitempty"`
}

// BuildAux carries auxiliary metadata such as the built image digest.
type BuildAux struct {
	ID string `json:"ID"`
}

// Decode parses the record as a build message. It returns false when the
// record is not a JSON object. Auxiliary payloads that are not objects (such
// as BuildKit trace blobs) decode with a nil Aux.
func (r BuildRecord) Decode() (BuildMessage, bool) {
	var raw struct {
		Stream string          `json:"stream"`
		Error  string          `json:"error"`
		Aux    json.RawMessage `json:"aux"`
	}
	if len(r) == 0 || r[0] != '{' {
		return BuildMessage{}, false
	}
	if err := json.Unmarshal([]byte(r), &raw); err != nil {
		return BuildMessage{}, false
	}
	msg := BuildMessage{Stream: raw.Stream, Error: raw.Error}
	if len(raw.Aux) > 0 && raw.Aux[0] == '{' {
		var aux BuildAux
		if err := json.Unmarshal(raw.Aux, &aux); err == nil {
			msg.Aux = &aux
		}
	}
	return msg, true
}

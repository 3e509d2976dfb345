// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"context"
	"encoding/json"
	"io"

	"github.com/hivetechs/consensus/internal/jq"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

// JSONError is the machine-readable form of a command failure
type JSONError struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// EmitJSON writes v as indented JSON, or through the --jq filter when one
// was given
func EmitJSON(ctx context.Context, w io.Writer, v interface{}) error {
	if expr := GetJQ(); expr != "" {
		filter, err := jq.Compile(expr, 0, 0)
		if err != nil {
			return NewConfigError("invalid --jq expression", err)
		}
		return filter.Write(ctx, w, v, false)
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// EventWriter writes one JSON document per line, applying the --jq filter
// to each
type EventWriter struct {
	w      io.Writer
	enc    *json.Encoder
	filter *jq.Filter
}

// NewEventWriter creates an NDJSON writer honoring the --jq flag
func NewEventWriter(w io.Writer) (*EventWriter, error) {
	ew := &EventWriter{w: w, enc: json.NewEncoder(w)}
	if expr := GetJQ(); expr != "" {
		filter, err := jq.Compile(expr, 0, 0)
		if err != nil {
			return nil, NewConfigError("invalid --jq expression", err)
		}
		ew.filter = filter
	}
	return ew, nil
}

// Write emits v on its own line
func (ew *EventWriter) Write(ctx context.Context, v interface{}) error {
	if ew.filter != nil {
		return ew.filter.Write(ctx, ew.w, v, false)
	}
	return ew.enc.Encode(v)
}

// NewJSONError converts err for JSON output
func NewJSONError(err error) JSONError {
	je := JSONError{Kind: pkgerrors.KindOf(err), Message: err.Error()}
	var userErr pkgerrors.UserVisibleError
	if pkgerrors.As(err, &userErr) && userErr.IsUserVisible() {
		je.Suggestion = userErr.Suggestion()
	}
	return je
}

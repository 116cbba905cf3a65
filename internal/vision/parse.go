package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// scanSchemaJSON constrains the shape of the model's payload before we
// commit to decoding it. Scalars are deliberately loose (string or number
// or null); the normalizer owns type coercion.
const scanSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "scalar": {"type": ["string", "number", "null"]},
    "record": {
      "type": "object",
      "properties": {
        "date": {"$ref": "#/$defs/scalar"},
        "time_in": {"$ref": "#/$defs/scalar"},
        "time_out": {"$ref": "#/$defs/scalar"},
        "lunch_timeout": {"$ref": "#/$defs/scalar"},
        "total_hours": {"$ref": "#/$defs/scalar"},
        "is_daily_entry": {"type": ["boolean", "null"]},
        "overnight": {"type": ["boolean", "null"]}
      }
    },
    "recordList": {"type": "array", "items": {"$ref": "#/$defs/record"}}
  },
  "anyOf": [
    {
      "type": "object",
      "required": ["records"],
      "properties": {"records": {"$ref": "#/$defs/recordList"}}
    },
    {"$ref": "#/$defs/recordList"},
    {"$ref": "#/$defs/record"}
  ]
}`

var scanSchema = jsonschema.MustCompileString("timesheet-scan.schema.json", scanSchemaJSON)

// firstJSONValue returns the first well-formed JSON value embedded in the
// text, tolerating markdown fences and explanatory prose around it.
func firstJSONValue(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return nil, fmt.Errorf("no JSON value found in response")
	}

	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding JSON value: %w", err)
	}
	return raw, nil
}

// parseScanJSON extracts timesheet records from the model's raw text
// response. Accepted shapes: {"records": [...]}, a bare array of records,
// or a single bare record object (wrapped into a one-element list).
func parseScanJSON(text string) ([]RawRecord, error) {
	raw, err := firstJSONValue(text)
	if err != nil {
		return nil, err
	}

	if err := validateScanPayload(raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty JSON value in response")
	}

	if trimmed[0] == '[' {
		var records []RawRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("unmarshaling record list: %w", err)
		}
		return records, nil
	}

	var envelope struct {
		Records *[]RawRecord `json:"records"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshaling response object: %w", err)
	}
	if envelope.Records != nil {
		return *envelope.Records, nil
	}

	// Bare single record: wrap into a one-element list.
	var record RawRecord
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling single record: %w", err)
	}
	if record.Empty() {
		return nil, nil
	}
	return []RawRecord{record}, nil
}

// validateScanPayload checks the raw payload against the scan schema.
func validateScanPayload(raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decoding payload for schema check: %w", err)
	}
	if err := scanSchema.Validate(doc); err != nil {
		return fmt.Errorf("response does not match timesheet schema: %w", err)
	}
	return nil
}

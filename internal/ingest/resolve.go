package ingest

import (
	"bytes"
	"encoding/json"

	"htbot/internal/reading"
)

// ResolveDestinations extracts the subscribed destinations from a raw
// subscription lookup body. It fails closed: anything other than
// {"success": true, "data": [...]} yields nil. Rows without a destination
// are dropped and duplicates removed, keeping first-seen order.
func ResolveDestinations(raw []byte) []string {
	var doc map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return nil
	}
	var success bool
	if err := json.Unmarshal(doc["success"], &success); err != nil || !success {
		return nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(doc["data"], &rows); err != nil {
		return nil
	}

	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, row := range rows {
		var fields map[string]any
		d := json.NewDecoder(bytes.NewReader(row))
		d.UseNumber()
		if err := d.Decode(&fields); err != nil || fields == nil {
			continue
		}
		var id string
		switch v := fields["line_id"].(type) {
		case string, json.Number:
			id = reading.Stringify(v)
		}
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package filter

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// GetValByPath resolves a dotted/indexed path ("payload.sensor.id",
// "payload.readings[0]") against ctx. Grounded on the teacher's
// evaluator.GetValByPath: marshal the map to JSON once, then let gjson do
// the actual path walk rather than hand-rolling map/slice traversal.
func GetValByPath(ctx Context, path string) any {
	if path == "" {
		return nil
	}
	data, err := json.Marshal(map[string]any(ctx))
	if err != nil {
		return nil
	}
	// gjson addresses array elements as ".0", so "readings[0]" becomes
	// "readings.0".
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// SetValByPath rewrites path inside a JSON payload to value, returning the
// new payload bytes. Grounded on the teacher's evaluator.SetValByPath: the
// gjson-for-read / sjson-for-write pairing the teacher uses for in-place
// JSON field edits, here backing the rule engine's mutate action.
func SetValByPath(payload []byte, path string, value any) ([]byte, error) {
	return sjson.SetBytes(payload, path, value)
}

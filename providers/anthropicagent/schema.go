package anthropicagent

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// convertSchema recursively walks a tool's JSON-Schema parameters (tagged
// data: objects, arrays, scalars) and rebuilds the agent SDK's native
// parameter shape, preserving nested objects, arrays, enums, required flags,
// and descriptions (spec §4.13.3). Walked via gjson rather than
// json.Unmarshal into a fixed struct, since schemas are arbitrarily shaped.
func convertSchema(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	root := gjson.ParseBytes(raw)
	return convertNode(root)
}

func convertNode(node gjson.Result) map[string]any {
	out := map[string]any{}

	if t := node.Get("type"); t.Exists() {
		out["type"] = t.Value()
	}
	if d := node.Get("description"); d.Exists() {
		out["description"] = d.String()
	}
	if e := node.Get("enum"); e.Exists() && e.IsArray() {
		var vals []any
		e.ForEach(func(_, v gjson.Result) bool {
			vals = append(vals, v.Value())
			return true
		})
		out["enum"] = vals
	}
	if r := node.Get("required"); r.Exists() && r.IsArray() {
		var req []string
		r.ForEach(func(_, v gjson.Result) bool {
			req = append(req, v.String())
			return true
		})
		out["required"] = req
	}

	if props := node.Get("properties"); props.Exists() && props.IsObject() {
		propOut := map[string]any{}
		props.ForEach(func(k, v gjson.Result) bool {
			propOut[k.String()] = convertNode(v)
			return true
		})
		out["properties"] = propOut
	}

	if items := node.Get("items"); items.Exists() {
		out["items"] = convertNode(items)
	}

	return out
}

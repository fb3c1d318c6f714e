// Package canonical produces the deterministic JSON byte form that request
// signatures are computed over.
//
// Two parties that hold logically equal values must derive byte-identical
// output, so the rules below are protocol constants and never follow the
// defaults of any particular JSON library:
//
//   - object keys are sorted at every depth, including objects nested
//     inside arrays; array order is preserved
//   - object members and array items are separated by ", " and keys are
//     separated from values by ": "; no other whitespace is emitted
//   - strings escape '"', '\' and control characters; everything else is
//     written as UTF-8 unless Options.ASCII is set
//   - numbers keep their literal text when given as json.Number and are
//     otherwise rendered in the shortest round-trip decimal form
//
// # Usage
//
//	b, err := canonical.Canonicalize(map[string]any{"b": 1, "a": 2})
//	// b == []byte(`{"a": 2, "b": 1}`)
//
// The signed envelope is built with Payload:
//
//	b, err := canonical.Payload{RequestID: id, Body: body}.Bytes()
//	// {"body": {...}, "request_id": "..."}
package canonical

package export

import "encoding/json"

// RenderJSON produces the canonical structured export document. Every
// other renderer derives its content from the same Snapshot, but JSON is
// the one format that round-trips losslessly — it is what a caller
// re-hashes to verify integrity after the fact.
func RenderJSON(snap *Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

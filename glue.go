package nb2doc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Metadata key outputs use to tag themselves for cross-document
// embedding (the scrapbook convention).
const glueMetadataKey = "scrapbook"

// GlueResources maps glue keys to the mime bundle of the tagged output.
type GlueResources map[string]*MimeBundleData

// ExtractGlue scans a notebook's code cell outputs for glue-tagged
// display data and collects their mime bundles by key. A key tagged
// twice keeps the last occurrence in document order.
func ExtractGlue(nb *Notebook) GlueResources {
	resources := GlueResources{}
	for _, cell := range nb.Cells {
		if cell.Type != CellCode {
			continue
		}
		for _, out := range cell.Outputs {
			if out.Type != OutputDisplayData && out.Type != OutputExecuteResult {
				continue
			}
			scrap, ok := out.Metadata[glueMetadataKey].(map[string]any)
			if !ok {
				continue
			}
			name, ok := scrap["name"].(string)
			if !ok || name == "" {
				continue
			}
			resources[name] = out.Data
		}
	}
	return resources
}

// Keys returns the glue keys in sorted order.
func (g GlueResources) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EncodeGlue serializes glue resources as UTF-8 JSON for the sidecar
// file. Binary payloads are written as their base64 form, so every
// value in the sidecar is an ASCII string.
func EncodeGlue(resources GlueResources) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, key := range resources.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGlueEncode, err)
		}
		b.Write(k)
		b.WriteByte(':')
		bundle := resources[key]
		if bundle == nil {
			bundle = NewMimeBundleData()
		}
		v, err := json.Marshal(bundle)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGlueEncode, err)
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

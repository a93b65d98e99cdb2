// Package sink writes flushed batches of case records to the external
// dataset. Every backend is an upsert: re-sending the same batch after a crash
// overwrites the earlier copy instead of duplicating it.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/cjeu-harvester/internal/crawler"
	"github.com/JakeFAU/cjeu-harvester/internal/hash/sha256"
)

// shardName derives a stable file name from the batch's identifiers.
func shardName(records []crawler.CaseRecord) string {
	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = rec.Identifier.String()
		if keys[i] == "" {
			keys[i] = rec.URL
		}
	}
	return fmt.Sprintf("batch-%s.jsonl", sha256.KeyDigest(keys)[:16])
}

// encodeJSONL renders one JSON object per line with the dataset columns.
func encodeJSONL(records []crawler.CaseRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode record %s: %w", rec.Identifier, err)
		}
	}
	return buf.Bytes(), nil
}

func validate(records []crawler.CaseRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("empty batch")
	}
	for _, rec := range records {
		if rec.URL == "" {
			return fmt.Errorf("record %s has no url", rec.Identifier)
		}
	}
	return nil
}

// Package cache memoizes external lookup results in Postgres with per-type
// freshness windows, and holds the in-process ticker symbol table.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"pathsynch/internal/types"
)

// keyInput is the canonical form hashed into a cache key. Go marshals map
// keys in sorted order, so identical params always produce identical bytes.
type keyInput struct {
	DataType types.CacheDataType `json:"dataType"`
	Params   map[string]string   `json:"params"`
}

// Key derives the deterministic cache key for one lookup: canonical JSON of
// {dataType, params}, SHA-256, hex, truncated to 32 characters.
func Key(dataType types.CacheDataType, params map[string]string) string {
	canonical, _ := json.Marshal(keyInput{DataType: dataType, Params: params})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:32]
}

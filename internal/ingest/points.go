package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/Zykairotis/contextd/internal/chunker"
	"github.com/Zykairotis/contextd/internal/vectorstore"
)

// chunkIDNamespace seeds the deterministic point ids.
var chunkIDNamespace = uuid.MustParse("8f3b5cde-4a22-4d8b-9f0e-2b1a6d9c7e41")

// ContentHash is the idempotency key for a document: SHA-256 over the
// normalized source bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DocumentID derives the stable document id from its scope and source ref.
// Catalog rows, vector payloads, and deletion filters all use this value, so
// re-ingests line up across stores.
func DocumentID(datasetID, sourceRef string) string {
	return uuid.NewSHA1(chunkIDNamespace, []byte(datasetID+"|"+sourceRef)).String()
}

// ChunkID derives a stable point id. It is a pure function of
// (documentID, ordinal, text hash), so re-ingesting an unchanged document
// reproduces the exact id set.
func ChunkID(documentID string, ordinal int, text string) string {
	textHash := sha256.Sum256([]byte(text))
	seed := fmt.Sprintf("%s|%d|%s", documentID, ordinal, hex.EncodeToString(textHash[:]))
	return uuid.NewSHA1(chunkIDNamespace, []byte(seed)).String()
}

// buildPayload assembles the vector payload for one chunk: full chunk
// metadata plus the parent identifiers every retrieval filter scopes on.
func buildPayload(projectID, datasetID, documentID, chunkID string, item Item, ch chunker.Chunk) map[string]any {
	payload := map[string]any{
		vectorstore.FieldProjectID:  projectID,
		vectorstore.FieldDatasetID:  datasetID,
		vectorstore.FieldDocumentID: documentID,
		vectorstore.FieldChunkID:    chunkID,
		"source_kind":               string(item.Kind),
		"file_or_url":               item.Ref,
		"language":                  ch.Language,
		"chunk_title":               ch.Title,
		"start_line":                int64(ch.StartLine),
		"end_line":                  int64(ch.EndLine),
		"text":                      ch.Text,
	}
	if item.Kind == SourceWeb {
		payload["url"] = item.Ref
		if d := domainOf(item.Ref); d != "" {
			payload["domain"] = d
		}
		if ch.SectionPath != "" {
			payload["section_path"] = ch.SectionPath
		}
	}
	if ch.Symbol != nil {
		payload["symbol_name"] = ch.Symbol.Name
		payload["symbol_kind"] = ch.Symbol.Kind
		if ch.Symbol.Signature != "" {
			payload["symbol_signature"] = ch.Symbol.Signature
		}
		if ch.Symbol.Parent != "" {
			payload["symbol_parent"] = ch.Symbol.Parent
		}
		if ch.Symbol.Docstring != "" {
			payload["symbol_docstring"] = ch.Symbol.Docstring
		}
	}
	return payload
}

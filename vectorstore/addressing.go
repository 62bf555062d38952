package vectorstore

import "strings"

const documentPrefix = "doc_"

// DocumentPrefix is the id prefix shared by every vector of docID and by no
// other document, given ids validated by core.ValidateDocumentID.
func DocumentPrefix(docID string) string {
	return documentPrefix + docID + "_"
}

// VectorID derives the store id of a chunk. Chunk ids start with their
// document id, so the result always starts with DocumentPrefix.
func VectorID(chunkID string) string {
	return documentPrefix + chunkID
}

// BelongsTo reports whether vectorID was derived from docID.
func BelongsTo(vectorID, docID string) bool {
	return strings.HasPrefix(vectorID, DocumentPrefix(docID))
}

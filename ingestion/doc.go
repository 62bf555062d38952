// Package ingestion turns raw documents into stored vectors.
//
// An Uploader runs one document through the pipeline:
//   - chunk the text into overlapping windows
//   - embed every chunk in a single provider call
//   - upsert the vectors in sequential batches
//
// Vector ids are derived from the document id so the whole document can later
// be found, patched or deleted by prefix. Re-uploading under an existing id
// does not remove the previous vectors; use WithReplace for that.
//
// UploadDirectory fans files out over a worker pool. A failing file is logged
// and reported in its result without stopping the others.
package ingestion

// Package vectorstore defines the vector index abstraction and owns the
// addressing scheme that ties vectors to their documents.
//
// Every vector id produced by the pipeline has the form
// doc_{doc_id}_chunk_{n}. DocumentPrefix(doc_id) is therefore a prefix of
// all of a document's vectors, which is what DeleteByDocument and
// UpdateMetadataByDocument rely on. Document ids never contain '_', so no
// prefix can match another document's vectors.
//
// Implementations live in sub-packages:
//
//   - vectorstore/pinecone: the hosted Pinecone REST API
//   - vectorstore/badger: an embedded store with the same semantics, used
//     for local runs and tests
package vectorstore

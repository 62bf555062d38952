// Package pinecone implements vectorstore.Store over the Pinecone REST API.
//
// The control plane lists and creates indexes; the data-plane host of the
// index is taken from its description, or from Config.Host when set.
// Connectivity failures and 5xx responses wrap core.ErrStoreUnavailable.
package pinecone

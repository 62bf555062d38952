// Package retrieval turns a natural-language query into a ranked,
// deduplicated set of passages.
//
// A Retrieve call embeds the query, asks the vector store for the top_k
// nearest chunks, removes duplicate ids, and optionally reranks the rest
// against the query. Candidates whose rerank relevance falls below the
// threshold are dropped, unless that would leave nothing, in which case
// the top_n reranked candidates are returned. A failing reranker never
// fails the call: the result carries ai.Unranked and similarity order.
//
// Usage:
//
//	r, err := retrieval.NewRetriever(provider.Embedder(), store,
//	    retrieval.WithReranker(provider.Reranker()),
//	    retrieval.WithDefaultNamespace("docs"))
//	if err != nil {
//	    return err
//	}
//
//	result, err := r.Retrieve(ctx, "how do I rotate keys?", retrieval.WithTopN(3))
//
// Context and SearchDocuments wrap Retrieve for callers that cannot handle
// errors: they report failures in their return value.
package retrieval

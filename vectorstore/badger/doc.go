// Package badger provides an embedded vector store backed by BadgerDB.
//
// Vectors are stored one key per id under a namespace prefix, with values
// encoded by mus-go. Query is an exhaustive scan scored with the
// collection's metric and filtered with vectorstore.Filter.Match, so the
// store behaves like a hosted index for local runs and tests.
//
// Usage:
//
//	store, err := badger.Open("./data", false)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.EnsureCollection(ctx, vectorstore.CollectionSpec{
//	    Name: "docs", Dimension: 1024, Metric: vectorstore.MetricCosine,
//	})
package badger

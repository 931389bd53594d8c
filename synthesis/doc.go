// Package synthesis builds MemoryShards from the SourceDocuments in a graph store.
//
// Each chunk of a document is keyed by the hash of its text, so running the
// same synthesis twice creates nothing new and a failed chunk can simply be
// retried by running again.
//
// Basic usage:
//
//	orch, err := synthesis.NewOrchestrator(graph, provider, ai.DefaultInferenceParams())
//	if err != nil {
//	    return err
//	}
//	defer orch.Release()
//
//	result, err := orch.Synthesize(ctx, "kairix", "run")
package synthesis

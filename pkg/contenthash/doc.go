// Package contenthash computes deterministic fingerprints over the
// semantic content of translation entries.
//
// The digests are used as optimistic-concurrency tokens: a client submits
// the hash it last observed, and the server compares it against the hash
// of the currently stored content to classify an edit as clean or
// conflicting. Collision resistance only matters insofar as it avoids
// false "no-conflict" classifications.
package contenthash

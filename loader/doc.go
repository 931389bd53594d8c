// Package loader imports ChatGPT conversation exports into the memory graph
// as SourceDocuments.
package loader

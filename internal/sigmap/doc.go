// Package sigmap is the certified signature map.
//
// Keys are SHA-256 hashes of identity seeds and values are delegation hashes.
// The map commits to its live entries with a binary hash tree whose leaves are
// sorted by key, and answers with witnesses that a relying party can check
// against the certified root. Expired entries are pruned in bounded batches.
package sigmap

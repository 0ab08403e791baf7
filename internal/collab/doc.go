// Package collab contains the clients for the gateway's external
// collaborators: the skill classifier and the semantic search index.
//
// Both speak JSON over HTTP. Without a classifier endpoint tools stay
// unclassified; without an index endpoint NoopIndex is used and search is
// purely lexical.
package collab

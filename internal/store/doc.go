// Package store provides the persistence implementations of api.Store.
//
// MemoryStore keeps everything in process and is used for development and
// tests. SQLiteStore persists servers and tools in a local SQLite database
// with connection configs sealed at rest by an Encryptor.
//
// Both stores cascade server deletion to the server's tools and return the
// deleted tool ids so the caller can purge them from the search index.
package store

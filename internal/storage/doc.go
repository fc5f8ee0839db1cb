// Package storage persists classified notifications, the folder taxonomy,
// monitored-app opt-ins and free-form settings in a local SQLite database.
//
// The pool holds a single connection, so every transaction is serialized and
// readers never observe a half-applied folder rename.
package storage

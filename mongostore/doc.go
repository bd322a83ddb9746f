// Package mongostore implements the goPasswordless code, password and device
// stores on MongoDB.
//
// Records carry a version field. Mutate reads a record, applies the caller's
// function and writes the result with a conditional ReplaceOne, InsertOne or
// DeleteOne keyed on the version it read; on a lost race the read is retried.
// Expired codes are purged by a TTL index and ignored by reads before the
// purge runs.
package mongostore

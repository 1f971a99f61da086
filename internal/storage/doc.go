// Package storage provides the persistence layer behind the notification
// pipeline.
//
// It keeps two independent keyed blobs:
//   - The full notification record list (owned by the Store)
//   - The set of processed notification ids (owned by the Delivery Router)
//
// Both tolerate a missing or malformed payload by returning empty state;
// storage corruption is never fatal and never surfaced to the user.
package storage

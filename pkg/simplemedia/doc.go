// Package simplemedia manages uploaded media objects kept in an external
// object store and their link to owning records (for example products).
//
// An upload is a two-phase operation: the object is written to the
// ObjectStore first and only then recorded in the Repository without an
// owner. Owner flows later attach or detach media with set-based updates.
// Media that stays unattached past the retention window is an orphan and is
// removed by the reconcile subpackage.
//
// Consistency Model
//
// A metadata row is never visible before its object exists, and a metadata
// row is never removed before the object store accepted the delete. The
// reverse gaps are accepted: a failed metadata insert leaves an object
// without a row, and a crash between the batch delete and the metadata
// delete leaves a row without an object.
package simplemedia

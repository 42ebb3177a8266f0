// Package manifest maintains the content-hash ledger of a backup
// directory and verifies it after the fact.
//
// The manifest records every backed-up file with its size, streamed
// SHA-256 digest, modification time and, for files following the backup
// naming convention, the remote message identifier. Verification re-walks
// the directory and classifies entries as verified, missing or corrupted;
// files on disk that the manifest does not know about are reported as
// extra without invalidating the backup.
package manifest

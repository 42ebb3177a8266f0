// Package backup orchestrates a resumable mailbox backup. The Coordinator
// enumerates message ids for a query, fetches each message through the rate
// limiter, charges the quota tracker, writes messages to storage, and
// checkpoints progress at a configurable interval.
package backup

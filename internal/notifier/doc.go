// Package notifier reports run outcomes to an operator chat.
//
// The service subscribes to scheduler events on the event bus and turns root
// job failures and the final run report into short text messages. Delivery
// goes through a Sender (Telegram in production), is rate limited and retried
// with jittered backoff. Cascaded failures are not reported one by one; they
// are counted in the final report.
//
// Stop drains what is already queued so the final report is delivered even
// when the run was interrupted.
package notifier

// Package sms delivers outbound messages through the Africa's Talking
// bulk-messaging API. Sends are fire-and-forget from the pipeline's point
// of view: failures are logged and counted, never retried.
package sms

import "context"

// Sender delivers one SMS to one recipient.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

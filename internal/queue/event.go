// Package queue defines message payloads exchanged over the message broker
// and the background consumer that delivers confirmation mail.
package queue

// EmailConfirmationQueue is the durable queue carrying confirmation events.
const EmailConfirmationQueue = "email.confirmation"

// EmailConfirmationEvent is published when a new account needs its email
// confirmed, at signup and on explicit re-request.  It carries everything
// the mail consumer needs to build and send the message without touching
// the primary database.
type EmailConfirmationEvent struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Token       string `json:"token"`
	BaseURL     string `json:"base_url"`
	RequestedAt string `json:"requested_at"`
}

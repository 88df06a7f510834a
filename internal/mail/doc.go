// Package mail delivers compiled digests.
//
// Messages are composed as multipart/alternative (go-message) and optionally
// DKIM-signed (go-msgauth) before being handed to one of the transports:
// an SMTP submission server, the Resend HTTP API, a pickup directory
// (.eml files or an mbox), or an IMAP mailbox.
package mail

// Package flow composes credential verification, refresh tokens, access tokens, the session
// registry and the audit trail into the login, refresh and logout flows.
//
// Callers only ever see the error kinds from autherr. The sub-reason of a failure goes to the
// audit event and the log, never to the client.
package flow

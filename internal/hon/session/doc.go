// Package session owns the hOn account session: credentials, tokens and the
// validity window.
//
// A session is established by a multi-step login against the identity
// provider:
//
//  1. request a one-time frontdoor URL with the credentials and the
//     framework-version tag (retried once with the tag the server expects)
//  2. follow the frontdoor URL and the progressive-login page
//  3. run the OAuth implicit flow and extract the identity token
//  4. exchange the identity token for a session token
//
// The session is treated as expired a refresh margin before the server's
// own timeout. Manager serialises the protocol: concurrent callers that
// find the session expired wait for the one login in flight and then
// re-check validity instead of logging in again.
//
// # Usage
//
//	mgr, err := session.New(cfg, session.WithFrameworkStore(store))
//	if err := mgr.EnsureValid(ctx); err != nil {
//	    return err
//	}
//	mgr.Apply(req) // cognito-token, id-token, User-Agent
package session

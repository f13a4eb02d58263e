// Package apiclient implements the resilient request client used by the
// TaskDeck dashboard to call its backend.
//
// Every call goes through the same pipeline:
//  1. Anti-forgery binding: mutating calls ensure a CSRF token is cached,
//     collapsing concurrent fetches into a single network call.
//  2. Timeout enforcement: each call owns a cancellation timer.
//  3. Credential attachment: bearer token and CSRF header.
//  4. Dispatch and classification into the typed error taxonomy
//     (NetworkError, TimeoutError, HTTPError, ErrAuthExpired).
//
// A 401 response triggers exactly one silent credential refresh followed by
// one retry; the refresh is invisible to the caller on success.
//
// Example usage:
//
//	store := session.NewStore()
//	client := apiclient.New(apiclient.Config{BaseURL: "https://deck.example.com"}, store)
//
//	if _, err := client.Login(ctx, "alice@example.com", "password"); err != nil {
//	    // route the user through authentication
//	}
//
//	var projects []Project
//	if err := client.Get(ctx, "/api/v1/projects", &projects); err != nil {
//	    // surface as a retryable failure when apiclient.IsRetryable(err)
//	}
package apiclient

// Package resilience groups the fault tolerance building blocks the client
// SDK uses against an unreliable backend.
//
// The package supports:
//   - Circuit breaking for request dispatch, so a failing backend is not
//     hammered by interactive retry loops
//   - Exponential backoff with jitter, driving the push channel redial
//     schedule and host-side retries of retryable calls
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.APIClientConfig())
//	resp, err := cb.Execute(func() (interface{}, error) {
//	    return httpClient.Do(req)
//	})
//
//	err := retry.WithBackoff(ctx, retry.DefaultConfig(), apiclient.IsRetryable, func() error {
//	    return client.Get(ctx, "/api/v1/projects", &out)
//	})
package resilience

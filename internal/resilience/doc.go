// Package resilience groups the fault tolerance building blocks of the
// acquisition pipeline.
//
// Subpackages:
//   - retry: bounded retries with exponential backoff, jitter and error
//     classification
//   - circuitbreaker: per (target, strategy) failure memory on top of
//     sony/gobreaker
//   - workerpool: bounded, FIFO-fair leasing of expensive workers
//   - fallback: ordered strategy chains with an acceptance predicate
//
// Usage Example:
//
//	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
//	key := circuitbreaker.Key{Target: "example.com", Strategy: "fetch"}
//	if breaker.Ready(key) {
//	    ticket, err := breaker.Allow(key)
//	    if err == nil {
//	        _, err = retry.New(retry.WebScraperConfig()).Execute(ctx, fetch, nil)
//	        if err != nil {
//	            ticket.Failure()
//	        } else {
//	            ticket.Success()
//	        }
//	    }
//	}
package resilience

package materializer

import (
	"errors"
	"net"
	"net/http"
	"time"
)

// httpRetrySchedule is the fixed HTTP fetch backoff (spec §4.2.4): no delay
// before the initial attempt (index 0), then retries after 2, 4 and 8
// seconds. The third retry (index 3) is the last attempt; exhausting it
// surfaces an InfraError.
var httpRetrySchedule = []time.Duration{0, 2 * time.Second, 4 * time.Second, 8 * time.Second}

// httpRetryable reports whether a response status or transport error
// should be retried: 5xx, 429, or a non-connect transfer error (the
// connection was established and then dropped mid-body, as opposed to a
// connection that was refused outright — refused connections usually mean
// a misconfigured URL, not a transient blip, so they are not retried here).
func httpRetryable(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			var opErr *net.OpError
			if errors.As(err, &opErr) && opErr.Op == "dial" {
				return false
			}
			return true
		}
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

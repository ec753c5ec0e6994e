package rate

import "errors"

// ErrBackend indicates the cache behind the limiter failed. Security
// middleware treats it as a deny.
var ErrBackend = errors.New("rate limit backend unavailable")

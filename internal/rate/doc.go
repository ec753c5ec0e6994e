// Package rate implements the route-aware request limiter on expiring
// cache counters. Route classification and identity resolution happen in
// the middleware layer; this package only counts and decides.
package rate

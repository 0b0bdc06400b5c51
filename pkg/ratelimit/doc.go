// Package ratelimit paces requests sent to Instagram.
//
// A TokenBucket starts full, so a burst of requests passes immediately, and then
// refills continuously at the configured rate. The Transport calls Wait before
// every request when a limiter is configured.
package ratelimit

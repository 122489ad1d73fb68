// Package cache provides the TTL cache shared by every read of the hOn
// cloud API.
//
// Entries are keyed by (resource kind, device id). An entry older than the
// TTL supplied at read time is treated as absent. Entries leave the cache
// only by expiry-on-read replacement, explicit Delete, or Invalidate of a
// whole device after a command succeeds; growth is bounded by the number
// of appliances times the number of resource kinds.
//
// # Usage
//
//	key := cache.Key{Kind: cache.KindContext, DeviceID: mac}
//	payload, err := cache.Fetch(ctx, c, key, 10*time.Second, fetchContext)
//	...
//	c.Invalidate(mac) // after a successful command
package cache

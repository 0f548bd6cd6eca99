// Package locks serializes critical sections that span processes, such as
// first-administrator promotion.
//
// [RedisLocker] uses SET NX PX with a random token and releases through a
// compare-and-delete script so an expired holder cannot release a lock it
// no longer owns. [MutexLocker] covers single-process deployments.
package locks

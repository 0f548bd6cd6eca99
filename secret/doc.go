// Package secret generates and compares the out-of-band account secrets:
// license keys and recovery codes. Both use the XXXX-XXXX-XXXX format over
// the alphabet A-Z0-9 and are drawn from crypto/rand.
package secret

// Package mongo is the MongoDB relay backend. The one-time pool is embedded in
// the account document so allocation is one atomic $pop.
package mongo

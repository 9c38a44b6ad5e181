// Package redis is the Redis relay backend. One-time prekey allocation and
// session flag purges run as Lua scripts so each is a single atomic step.
package redis

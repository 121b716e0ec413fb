//go:build !timelinedebug

package store

const debugInvariants = false

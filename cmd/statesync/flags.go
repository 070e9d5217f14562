package main

import "flag"

// flagSet wraps flag.FlagSet with ContinueOnError behavior so callers
// control error handling rather than the flag package exiting the
// process directly.
type flagSet struct {
	*flag.FlagSet
}

func newCustomFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return &flagSet{FlagSet: fs}
}

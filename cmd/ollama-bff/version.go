package main

import (
	"context"
	"fmt"
)

// set with -ldflags "-X main.version=... -X main.commit=... -X main.date=..."
var (
	version = "0"
	commit  = "abcd1234"
	date    = "unknown"
)

type VersionCommand struct {
}

func (c VersionCommand) Run(ctx context.Context) (err error) {
	fmt.Printf("version: %s (%s), built at %s\n", version, commit, date)
	return nil
}

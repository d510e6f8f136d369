package main

import (
	"context"
	"os"

	"github.com/Ltamann/tbg-ollama-bff/proxy"
	"github.com/alecthomas/kong"
)

type CLI struct {
	Serve   ServeCommand   `cmd:"serve" default:"1" help:"Start the BFF in front of an Ollama runtime."`
	Version VersionCommand `cmd:"version" help:"Print the version of the BFF."`
}

func main() {
	var cli CLI
	ctx := context.Background()
	kctx := kong.Parse(&cli,
		kong.Name("ollama-bff"),
		kong.Description("Backend-for-frontend that applies a fixed system directive to an Ollama runtime."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)))
	if err := kctx.Run(); err != nil {
		log := proxy.NewLogger("error", os.Stderr)
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

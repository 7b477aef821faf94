package main

import (
	"github.com/alecthomas/kong"
	"github.com/shibukawa/filterql/cli"
)

var version = "dev"

// CLI defines the command-line interface structure
type CLI struct {
	Config  string `help:"Configuration file path" default:"filterql.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose output"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`

	Compile cli.CompileCmd `cmd:"" help:"Compile a filter expression to SQL"`
	Check   cli.CheckCmd   `cmd:"" help:"Validate a filter expression"`
	Exec    cli.ExecCmd    `cmd:"" help:"Compile and run a filter expression against a database"`

	Version kong.VersionFlag `help:"Show version"`
}

func main() {
	var c CLI

	ctx := kong.Parse(&c,
		kong.Name("filterql"),
		kong.Description("Search-query compiler: filter expressions to parameterized SQL"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	err := ctx.Run(&cli.Context{
		Config:  c.Config,
		Verbose: c.Verbose,
		Quiet:   c.Quiet,
	})
	ctx.FatalIfErrorf(err)
}

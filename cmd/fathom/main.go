// Command fathom runs the deep-research engine: an interactive planning loop
// followed by an orchestrated research run that writes a cited markdown
// report.
//
// Usage:
//
//	fathom research "Compare SSB vs Li-ion batteries"
//	fathom validate --config configs/config.json
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/fathomresearch/fathom/pkg/config"
	"github.com/fathomresearch/fathom/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Research ResearchCmd `cmd:"" help:"Run a deep-research session."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration file."`

	Config    string `short:"c" help:"Path to config file." default:"configs/config.json" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple or json)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("fathom version %s\n", version)
	return nil
}

// ValidateCmd checks the configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config, "research")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

func main() {
	// Adapter credentials typically live in .env during development.
	_ = godotenv.Load()

	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("fathom"),
		kong.Description("Multi-agent deep-research engine."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Setup(logger.Options{Level: level, Format: cli.LogFormat})

	ctx.FatalIfErrorf(ctx.Run(cli))
}

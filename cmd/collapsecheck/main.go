// Command collapsecheck verifies the output of the collapseTransparent schema
// pass: reference integrity, dangling references to removed definitions, and
// agreement between the collapse-count annotation and the provenance data.
//
// Usage:
//
//	collapsecheck [flags] <schema.json> [<before-schema.json>]
//
// The exit status is 0 when every check passes and 1 on usage, configuration
// or load errors, or when any check reports a problem.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"

	"github.com/openbindings/collapsecheck"
	"github.com/openbindings/collapsecheck/internal/config"
	"github.com/openbindings/collapsecheck/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const usageLine = "Usage: collapsecheck [flags] <schema.json> [<before-schema.json>]"

func main() {
	os.Exit(run())
}

func run() int {
	fs := afero.NewOsFs()
	if err := config.LoadDotEnv(fs, ".env"); err != nil {
		_ = writef(os.Stdout, "error: %v\n", err)
		return 1
	}
	return runWithArgs(os.Args[1:], fs, os.Stdout, os.Stderr)
}

type flags struct {
	after  string
	before string

	configFile  string
	format      string
	logLevel    string
	definitions string
	refPrefix   string
	reduced     string
	collapsed   string

	color       bool
	colorSet    bool
	colorClause *kingpin.FlagClause
}

func (f *flags) register(app *kingpin.Application) {
	env := func(name string) string { return config.EnvPrefix + name }

	app.Flag("config.file", "TOML configuration file.").Envar(env("CONFIG_FILE")).PlaceHolder("PATH").StringVar(&f.configFile)
	app.Flag("output", "Report format: text or json.").Envar(env("OUTPUT")).PlaceHolder("FORMAT").StringVar(&f.format)
	app.Flag("log.level", "Log level for stderr diagnostics: debug, info, warn or error.").Envar(env("LOG_LEVEL")).PlaceHolder("LEVEL").StringVar(&f.logLevel)
	app.Flag("keywords.definitions", "Top-level key of the definitions mapping.").Envar(env("DEFINITIONS_KEY")).PlaceHolder("KEY").StringVar(&f.definitions)
	app.Flag("keywords.ref-prefix", "$ref prefix pointing into the definitions mapping.").Envar(env("REF_PREFIX")).PlaceHolder("PREFIX").StringVar(&f.refPrefix)
	app.Flag("keywords.reduced", "Per-definition provenance annotation.").Envar(env("REDUCED_KEY")).PlaceHolder("KEY").StringVar(&f.reduced)
	app.Flag("keywords.collapsed", "Top-level collapse-count annotation.").Envar(env("COLLAPSED_KEY")).PlaceHolder("KEY").StringVar(&f.collapsed)

	f.colorClause = app.Flag("color", "Colour the PASS/FAIL summary.").Envar(env("COLOR")).IsSetByUser(&f.colorSet)
	f.colorClause.BoolVar(&f.color)

	app.Arg("schema", "Schema produced by the collapse pass.").StringVar(&f.after)
	app.Arg("before-schema", "Schema before the collapse pass.").StringVar(&f.before)
}

func (f *flags) overrides() config.Overrides {
	str := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	o := config.Overrides{
		Format:      str(f.format),
		LogLevel:    str(f.logLevel),
		Definitions: str(f.definitions),
		RefPrefix:   str(f.refPrefix),
		Reduced:     str(f.reduced),
		Collapsed:   str(f.collapsed),
	}
	if f.colorSet || f.colorClause.HasEnvarValue() {
		color := f.color
		o.Color = &color
	}
	return o
}

func runWithArgs(args []string, fs afero.Fs, stdout, stderr io.Writer) int {
	app := kingpin.New("collapsecheck", "Verifies the output of the collapseTransparent schema pass.")
	app.Version(version)
	app.UsageWriter(stdout)
	app.ErrorWriter(stdout)
	terminated := false
	app.Terminate(func(int) { terminated = true })

	var f flags
	f.register(app)

	if _, err := app.Parse(args); err != nil {
		_ = writef(stdout, "error: %v\n", err)
		_ = writeln(stdout, usageLine)
		return 1
	}
	if terminated {
		return 0
	}
	if f.after == "" {
		app.Usage(nil)
		return 1
	}

	cfg := config.Defaults()
	if f.configFile != "" {
		loaded, err := config.Load(fs, f.configFile, cfg)
		if err != nil {
			_ = writef(stdout, "error: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	cfg = f.overrides().Apply(cfg)
	if err := cfg.Validate(); err != nil {
		_ = writef(stdout, "error: %v\n", err)
		return 1
	}

	logger, err := logging.New(stderr, cfg.Log.Level)
	if err != nil {
		_ = writef(stdout, "error: %v\n", err)
		return 1
	}

	kw := cfg.CollapseKeywords()
	loader := collapsecheck.NewLoader(fs, kw, logger)

	after, err := loader.Load(f.after)
	if err != nil {
		_ = writef(stdout, "error: %v\n", err)
		_ = writeln(stdout, usageLine)
		return 1
	}
	var before *collapsecheck.Document
	if f.before != "" {
		before, err = loader.Load(f.before)
		if err != nil {
			_ = writef(stdout, "error: %v\n", err)
			_ = writeln(stdout, usageLine)
			return 1
		}
	}

	report := collapsecheck.Verify(after, before,
		collapsecheck.WithKeywords(kw),
		collapsecheck.WithLogger(logger),
	)

	switch cfg.Output.Format {
	case config.FormatJSON:
		err = collapsecheck.WriteJSON(stdout, report)
	default:
		err = collapsecheck.WriteText(stdout, report, collapsecheck.TextOptions{Color: cfg.Output.Color})
	}
	if err != nil {
		level.Error(logger).Log("msg", "failed to write report", "err", err)
		return 1
	}

	if !report.Passed() {
		level.Info(logger).Log("msg", "collapse verification failed", "errors", len(report.Errors))
		return 1
	}
	return 0
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}

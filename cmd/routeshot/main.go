package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/routeshot"
	"github.com/root4loot/routeshot/internal/config"
)

const (
	author  = "@danielantonsen"
	version = "0.1.0"
	usage   = `USAGE:
  routeshot [options]

  Starts the web app, logs in with the test account and saves a screenshot of every route.
  Run it from the project root.

CONFIGURATIONS:
  -c,   --config                 config file                                             (Default: ./routeshot.yaml)
  -a,   --attach                 use an already running server instead of starting one   (Default: false)
  -b,   --backend                browser backend (rod, chromedp)                         (Default: rod)
  -ad,  --avoid-duplicates       prevent saving duplicate outputs                        (Default: false)
  -dt,  --duplicate-threshold    threshold for similarity percentage (1-100)             (Default: 96)
                                 Applicable only when --avoid-duplicates is enabled. Outputs
                                 with a similarity score greater than or equal to this value
                                 will be considered duplicates and will not be saved.

  Every option can also be set in the config file or as ROUTESHOT_<KEY>, e.g. ROUTESHOT_BASE_URL.

OUTPUT:
  -o,   --outfolder              save outputs to specified folder                        (Default: ./screenshots)
  -ut,  --url-text               add the page URL below each output image                (Default: false)
        --debug                  enable debug mode and show server output
        --version                display version
`
)

type cli struct {
	ConfigFile         string
	Attach             bool
	Backend            string
	OutputDir          string
	URLText            bool
	AvoidDuplicates    bool
	DuplicateThreshold int
	Debug              bool
	Help               bool
	Version            bool

	set map[string]bool // flags given on the command line, by long name
}

func init() {
	log.Init("routeshot")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	cli, err := parseFlags(args)
	if err != nil {
		log.Errorf("%v", err)
		fmt.Fprint(stdout, usage)
		return 1
	}

	if cli.Help {
		fmt.Fprint(stdout, usage)
		return 0
	}

	if cli.Version {
		fmt.Fprintln(stdout, "routeshot", version, "by", author)
		return 0
	}

	opts, file, err := config.Load(cli.ConfigFile)
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}
	cli.apply(opts)
	routeshot.SetLogLevel(opts)

	if file != "" {
		log.Debugf("Using config file %s", file)
	}

	if opts.ManageServer {
		if err := routeshot.CheckLayout(opts.LayoutMarker); err != nil {
			log.Errorf("%v", err)
			return 1
		}
	}

	runner, err := routeshot.NewRunnerWithOptions(*opts)
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}

	summary, err := runner.Run(ctx)
	summary.Print(opts.OutputDir)
	return exitCode(err)
}

// exitCode is 1 when the run aborted before capturing anything. Per-route
// failures and interrupts still exit 0.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case routeshot.IsCode(err, routeshot.CodeInterrupted):
		log.Warnf("Interrupted, remaining routes were skipped")
		return 0
	default:
		log.Errorf("%v", err)
		return 1
	}
}

func parseFlags(args []string) (*cli, error) {
	cli := &cli{}
	defaults := routeshot.DefaultOptions()

	fs := flag.NewFlagSet("routeshot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// CONFIGURATIONS
	fs.StringVar(&cli.ConfigFile, "config", "", "")
	fs.StringVar(&cli.ConfigFile, "c", "", "")
	fs.BoolVar(&cli.Attach, "attach", false, "")
	fs.BoolVar(&cli.Attach, "a", false, "")
	fs.StringVar(&cli.Backend, "backend", defaults.Backend, "")
	fs.StringVar(&cli.Backend, "b", defaults.Backend, "")
	fs.BoolVar(&cli.AvoidDuplicates, "avoid-duplicates", defaults.AvoidDuplicates, "")
	fs.BoolVar(&cli.AvoidDuplicates, "ad", defaults.AvoidDuplicates, "")
	fs.IntVar(&cli.DuplicateThreshold, "duplicate-threshold", defaults.DuplicateThreshold, "")
	fs.IntVar(&cli.DuplicateThreshold, "dt", defaults.DuplicateThreshold, "")

	// OUTPUT
	fs.StringVar(&cli.OutputDir, "outfolder", defaults.OutputDir, "")
	fs.StringVar(&cli.OutputDir, "o", defaults.OutputDir, "")
	fs.BoolVar(&cli.URLText, "url-text", defaults.URLInImage, "")
	fs.BoolVar(&cli.URLText, "ut", defaults.URLInImage, "")
	fs.BoolVar(&cli.Debug, "debug", false, "")
	fs.BoolVar(&cli.Help, "help", false, "")
	fs.BoolVar(&cli.Help, "h", false, "")
	fs.BoolVar(&cli.Version, "version", false, "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	cli.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		cli.set[longName(f.Name)] = true
	})

	return cli, nil
}

var aliases = map[string]string{
	"c":  "config",
	"a":  "attach",
	"b":  "backend",
	"ad": "avoid-duplicates",
	"dt": "duplicate-threshold",
	"o":  "outfolder",
	"ut": "url-text",
	"h":  "help",
}

func longName(name string) string {
	if long, ok := aliases[name]; ok {
		return long
	}
	return name
}

// apply overrides the resolved options with the flags given on the command
// line, so config and environment values survive unset flags.
func (cli *cli) apply(opts *routeshot.Options) {
	if cli.set["attach"] && cli.Attach {
		opts.ManageServer = false
	}
	if cli.set["backend"] {
		opts.Backend = cli.Backend
	}
	if cli.set["avoid-duplicates"] {
		opts.AvoidDuplicates = cli.AvoidDuplicates
	}
	if cli.set["duplicate-threshold"] {
		opts.DuplicateThreshold = cli.DuplicateThreshold
	}
	if cli.set["outfolder"] {
		opts.OutputDir = cli.OutputDir
	}
	if cli.set["url-text"] {
		opts.URLInImage = cli.URLText
	}
	if cli.set["debug"] && cli.Debug {
		opts.Debug = true
	}
}

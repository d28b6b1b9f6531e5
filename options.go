package routeshot

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/root4loot/goutils/urlutil"
	"github.com/root4loot/routeshot/internal/auth"
	"github.com/root4loot/routeshot/internal/server"
	"github.com/root4loot/routeshot/pkg/browser"
)

// Options contains everything a run needs. It is resolved once at startup.
type Options struct {
	BaseURL            string        `mapstructure:"base_url"`            // application origin
	Email              string        `mapstructure:"email"`               // test account email
	Password           string        `mapstructure:"password"`            // test account password
	OutputDir          string        `mapstructure:"output_dir"`          // where images are written
	ImageFormat        string        `mapstructure:"image_format"`        // png or jpeg
	ImageQuality       int           `mapstructure:"image_quality"`       // jpeg quality
	CaptureWidth       int           `mapstructure:"capture_width"`       // viewport width
	CaptureHeight      int           `mapstructure:"capture_height"`      // viewport height
	Backend            string        `mapstructure:"backend"`             // rod or chromedp
	BrowserBin         string        `mapstructure:"browser_bin"`         // Chrome binary, looked up when empty
	SettleStrategy     string        `mapstructure:"settle_strategy"`     // fixed, load, stable or selector
	SettleDelay        time.Duration `mapstructure:"settle_delay"`        // delay used by the settle strategy
	SettleSelector     string        `mapstructure:"settle_selector"`     // selector for the selector strategy
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`  // bound for navigate + settle
	DisableImages      bool          `mapstructure:"disable_images"`      // do not load images
	LoginPath          string        `mapstructure:"login_path"`          // route with the login form
	LoginSuccessPath   string        `mapstructure:"login_success_path"`  // route reached after logging in
	LoginTimeout       time.Duration `mapstructure:"login_timeout"`       // bound for form and redirect
	ManageServer       bool          `mapstructure:"manage_server"`       // start and stop the server ourselves
	ServerCommand      string        `mapstructure:"server_command"`      // command starting the server, split with shell quoting rules
	ServerDir          string        `mapstructure:"server_dir"`          // working directory of the server
	LayoutMarker       string        `mapstructure:"layout_marker"`       // file that must exist when managing the server
	ReadyGrace         time.Duration `mapstructure:"ready_grace"`         // wait before the first readiness probe
	ReadyTimeout       time.Duration `mapstructure:"ready_timeout"`       // how long to keep probing
	ReadyInterval      time.Duration `mapstructure:"ready_interval"`      // pause between probes
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`       // per-probe HTTP timeout
	StopTimeout        time.Duration `mapstructure:"stop_timeout"`        // wait for the server to exit
	URLInImage         bool          `mapstructure:"url_in_image"`        // imprint the page URL below each image
	AvoidDuplicates    bool          `mapstructure:"avoid_duplicates"`    // do not save near-identical captures
	DuplicateThreshold int           `mapstructure:"duplicate_threshold"` // similarity (1-100) treated as duplicate
	Debug              bool          `mapstructure:"debug"`               // verbose logging and server output
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() *Options {
	b := browser.DefaultOptions()
	a := auth.DefaultOptions()
	s := server.DefaultOptions()

	return &Options{
		BaseURL:            "http://localhost:3000",
		Email:              "admin@example.com",
		Password:           "password",
		OutputDir:          "screenshots",
		ImageFormat:        b.Format,
		ImageQuality:       b.Quality,
		CaptureWidth:       b.Width,
		CaptureHeight:      b.Height,
		Backend:            b.Backend,
		SettleStrategy:     browser.SettleFixed,
		SettleDelay:        3 * time.Second,
		NavigationTimeout:  b.NavigationTimeout,
		LoginPath:          a.LoginPath,
		LoginSuccessPath:   a.SuccessPath,
		LoginTimeout:       a.Timeout,
		ManageServer:       true,
		ServerCommand:      strings.Join(s.Command, " "),
		ServerDir:          s.Dir,
		LayoutMarker:       "web/package.json",
		ReadyGrace:         s.Grace,
		ReadyTimeout:       s.ReadyTimeout,
		ReadyInterval:      s.Interval,
		ProbeTimeout:       s.ProbeTimeout,
		StopTimeout:        s.StopTimeout,
		URLInImage:         false,
		AvoidDuplicates:    false,
		DuplicateThreshold: 96,
	}
}

// Validate rejects options a run cannot work with.
func (o *Options) Validate() error {
	var problems []string

	if o.BaseURL == "" || !urlutil.HasScheme(o.BaseURL) {
		problems = append(problems, fmt.Sprintf("base URL %q must include a scheme", o.BaseURL))
	}
	if o.OutputDir == "" {
		problems = append(problems, "output dir is empty")
	}
	switch o.ImageFormat {
	case browser.FormatPNG, browser.FormatJPEG:
	default:
		problems = append(problems, fmt.Sprintf("unknown image format %q", o.ImageFormat))
	}
	if o.ImageFormat == browser.FormatJPEG && (o.ImageQuality < 1 || o.ImageQuality > 100) {
		problems = append(problems, fmt.Sprintf("jpeg quality %d outside 1-100", o.ImageQuality))
	}
	switch o.Backend {
	case browser.BackendRod, browser.BackendChromedp:
	default:
		problems = append(problems, fmt.Sprintf("unknown backend %q", o.Backend))
	}
	if o.CaptureWidth <= 0 || o.CaptureHeight <= 0 {
		problems = append(problems, fmt.Sprintf("invalid viewport %dx%d", o.CaptureWidth, o.CaptureHeight))
	}
	if _, err := o.settler(); err != nil {
		problems = append(problems, err.Error())
	}
	if o.ManageServer {
		if args, err := o.serverCommand(); err != nil {
			problems = append(problems, fmt.Sprintf("invalid server command %q: %v", o.ServerCommand, err))
		} else if len(args) == 0 {
			problems = append(problems, "server command is empty")
		}
	}
	if o.AvoidDuplicates && (o.DuplicateThreshold < 1 || o.DuplicateThreshold > 100) {
		problems = append(problems, fmt.Sprintf("duplicate threshold %d outside 1-100", o.DuplicateThreshold))
	}

	if len(problems) > 0 {
		return newError(CodeInvalidOptions, strings.Join(problems, "; "), nil)
	}
	return nil
}

// ImageExt returns the file extension used for captures.
func (o *Options) ImageExt() string {
	if o.ImageFormat == browser.FormatJPEG {
		return "jpg"
	}
	return "png"
}

func (o *Options) settler() (browser.Settler, error) {
	return browser.NewSettler(o.SettleStrategy, o.SettleDelay, o.SettleSelector)
}

func (o *Options) browserOptions() browser.Options {
	settle, _ := o.settler()
	return browser.Options{
		Backend:           o.Backend,
		Bin:               o.BrowserBin,
		Width:             o.CaptureWidth,
		Height:            o.CaptureHeight,
		Format:            o.ImageFormat,
		Quality:           o.ImageQuality,
		NavigationTimeout: o.NavigationTimeout,
		Settle:            settle,
		DisableImages:     o.DisableImages,
	}
}

func (o *Options) authOptions() auth.Options {
	a := auth.DefaultOptions()
	a.LoginPath = o.LoginPath
	a.SuccessPath = o.LoginSuccessPath
	a.Timeout = o.LoginTimeout
	return a
}

// serverCommand splits ServerCommand into program and arguments, honouring
// quotes and escapes, e.g. sh -c "npm run dev".
func (o *Options) serverCommand() ([]string, error) {
	return shlex.Split(o.ServerCommand)
}

func (o *Options) serverOptions() server.Options {
	command, _ := o.serverCommand()
	s := server.Options{
		Command:      command,
		Dir:          o.ServerDir,
		Grace:        o.ReadyGrace,
		ReadyTimeout: o.ReadyTimeout,
		Interval:     o.ReadyInterval,
		ProbeTimeout: o.ProbeTimeout,
		StopTimeout:  o.StopTimeout,
	}
	if o.Debug {
		s.Output = os.Stderr
	}
	return s
}

// CheckLayout fails when marker does not exist, which means the tool is not
// being run from the project root.
func CheckLayout(marker string) error {
	if marker == "" {
		return nil
	}
	if _, err := os.Stat(marker); err != nil {
		return newError(CodeLayoutMissing, fmt.Sprintf("expected to find %s, run from the project root", marker), err)
	}
	return nil
}

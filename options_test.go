package routeshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/root4loot/routeshot/pkg/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptionsValidate(t *testing.T) {
	o := DefaultOptions()
	require.NoError(t, o.Validate())
	assert.Equal(t, "http://localhost:3000", o.BaseURL)
	assert.Equal(t, "screenshots", o.OutputDir)
	assert.Equal(t, browser.BackendRod, o.Backend)
	assert.Equal(t, 1920, o.CaptureWidth)
	assert.Equal(t, 1080, o.CaptureHeight)
	assert.Equal(t, 3*time.Second, o.SettleDelay)
	assert.True(t, o.ManageServer)
	assert.False(t, o.URLInImage)
	assert.False(t, o.DisableImages)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		valid  bool
	}{
		{"defaults", func(o *Options) {}, true},
		{"no scheme", func(o *Options) { o.BaseURL = "localhost:3000" }, false},
		{"empty output dir", func(o *Options) { o.OutputDir = "" }, false},
		{"jpeg", func(o *Options) { o.ImageFormat = browser.FormatJPEG }, true},
		{"jpeg bad quality", func(o *Options) { o.ImageFormat = browser.FormatJPEG; o.ImageQuality = 0 }, false},
		{"gif", func(o *Options) { o.ImageFormat = "gif" }, false},
		{"chromedp", func(o *Options) { o.Backend = browser.BackendChromedp }, true},
		{"unknown backend", func(o *Options) { o.Backend = "firefox" }, false},
		{"zero viewport", func(o *Options) { o.CaptureWidth = 0 }, false},
		{"selector settle without selector", func(o *Options) { o.SettleStrategy = browser.SettleSelector }, false},
		{"selector settle", func(o *Options) { o.SettleStrategy = browser.SettleSelector; o.SettleSelector = "main" }, true},
		{"empty server command", func(o *Options) { o.ServerCommand = "  " }, false},
		{"unterminated quote", func(o *Options) { o.ServerCommand = `sh -c "npm start` }, false},
		{"attached without command", func(o *Options) { o.ManageServer = false; o.ServerCommand = "" }, true},
		{"bad duplicate threshold", func(o *Options) { o.AvoidDuplicates = true; o.DuplicateThreshold = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.modify(o)
			err := o.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsCode(err, CodeInvalidOptions), "got %v", err)
			}
		})
	}
}

func TestImageExt(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, "png", o.ImageExt())
	o.ImageFormat = browser.FormatJPEG
	assert.Equal(t, "jpg", o.ImageExt())
}

func TestServerOptions(t *testing.T) {
	o := DefaultOptions()
	o.ServerCommand = "npm run dev -- --port 3000"
	s := o.serverOptions()
	assert.Equal(t, []string{"npm", "run", "dev", "--", "--port", "3000"}, s.Command)
	assert.Nil(t, s.Output)

	o.Debug = true
	assert.Equal(t, os.Stderr, o.serverOptions().Output)

	o.ServerCommand = `sh -c "npm run dev -- --port 3000"`
	assert.Equal(t, []string{"sh", "-c", "npm run dev -- --port 3000"}, o.serverOptions().Command)
}

func TestBrowserOptionsDisableImages(t *testing.T) {
	o := DefaultOptions()
	assert.False(t, o.browserOptions().DisableImages)
	o.DisableImages = true
	assert.True(t, o.browserOptions().DisableImages)
}

func TestCheckLayout(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "web", "package.json")

	err := CheckLayout(marker)
	assert.True(t, IsCode(err, CodeLayoutMissing))
	assert.ErrorIs(t, err, ErrAborted)

	require.NoError(t, os.MkdirAll(filepath.Dir(marker), 0o755))
	require.NoError(t, os.WriteFile(marker, []byte("{}"), 0o644))
	assert.NoError(t, CheckLayout(marker))
	assert.NoError(t, CheckLayout(""))
}

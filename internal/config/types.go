// Package config provides configuration types and loading functionality
// for kindle-extract.
package config

// Config is the root configuration structure
type Config struct {
	Reader    ReaderConfig    `yaml:"reader" json:"reader"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	Browser   BrowserConfig   `yaml:"browser" json:"browser"`
	Detection DetectionConfig `yaml:"detection" json:"detection"`
	Probes    ProbesConfig    `yaml:"probes" json:"probes"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Debug     DebugConfig     `yaml:"debug" json:"debug"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// ReaderConfig locates the reading service
type ReaderConfig struct {
	ReaderURL string `yaml:"readerUrl" json:"readerUrl"`
	BaseURL   string `yaml:"baseUrl" json:"baseUrl"`
}

// AuthConfig controls sign-in and cookie persistence
type AuthConfig struct {
	SignInURL   string `yaml:"signInUrl" json:"signInUrl"`
	VerifyURL   string `yaml:"verifyUrl" json:"verifyUrl"`
	CookieDir   string `yaml:"cookieDir" json:"cookieDir"`
	CookieFile  string `yaml:"cookieFile,omitempty" json:"cookieFile,omitempty"`
	WaitSeconds int    `yaml:"waitSeconds" json:"waitSeconds"`
	RememberMe  bool   `yaml:"rememberMe" json:"rememberMe"`
	// HTTPVerify checks saved cookies with a plain request before
	// starting a browser.
	HTTPVerify bool `yaml:"httpVerify" json:"httpVerify"`
}

// BrowserConfig controls the automated browser
type BrowserConfig struct {
	Headless    bool   `yaml:"headless" json:"headless"`
	Width       int    `yaml:"width" json:"width"`
	Height      int    `yaml:"height" json:"height"`
	UserAgent   string `yaml:"userAgent,omitempty" json:"userAgent,omitempty"`
	ExecPath    string `yaml:"execPath,omitempty" json:"execPath,omitempty"`
	UserDataDir string `yaml:"userDataDir,omitempty" json:"userDataDir,omitempty"`
}

// DetectionConfig tunes the page-turn detector
type DetectionConfig struct {
	Mode             string   `yaml:"mode" json:"mode"`
	MaxPages         int      `yaml:"maxPages" json:"maxPages"`
	PollIntervalMS   int      `yaml:"pollIntervalMs" json:"pollIntervalMs"`
	SettleDelayMS    int      `yaml:"settleDelayMs" json:"settleDelayMs"`
	TurnTimeoutMS    int      `yaml:"turnTimeoutMs" json:"turnTimeoutMs"`
	MaxStalls        int      `yaml:"maxStalls" json:"maxStalls"`
	LookupRetries    int      `yaml:"lookupRetries" json:"lookupRetries"`
	VolatilePatterns []string `yaml:"volatilePatterns,omitempty" json:"volatilePatterns,omitempty"`
	RelevanceMarkers []string `yaml:"relevanceMarkers,omitempty" json:"relevanceMarkers,omitempty"`
	NextSelectors    []string `yaml:"nextSelectors,omitempty" json:"nextSelectors,omitempty"`
}

// ProbesConfig controls which probes run and what they look for
type ProbesConfig struct {
	Enabled           []string `yaml:"enabled" json:"enabled"`
	ContentSelectors  []string `yaml:"contentSelectors,omitempty" json:"contentSelectors,omitempty"`
	TitleSelectors    []string `yaml:"titleSelectors,omitempty" json:"titleSelectors,omitempty"`
	AuthorSelectors   []string `yaml:"authorSelectors,omitempty" json:"authorSelectors,omitempty"`
	ImageSelectors    []string `yaml:"imageSelectors,omitempty" json:"imageSelectors,omitempty"`
	MinContentLength  int      `yaml:"minContentLength" json:"minContentLength"`
	MinScanTextLength int      `yaml:"minScanTextLength" json:"minScanTextLength"`
	// CaptureMarkers narrows which browser responses are kept. The
	// metadata, table of contents and content URL classes are always kept.
	CaptureMarkers    []string `yaml:"captureMarkers,omitempty" json:"captureMarkers,omitempty"`
}

// OutputConfig controls rendition generation
type OutputConfig struct {
	OutputPath   string             `yaml:"outputPath" json:"outputPath"`
	Formats      []string           `yaml:"formats" json:"formats"`
	EPUBMetadata EPUBMetadataConfig `yaml:"epubMetadata,omitempty" json:"epubMetadata,omitempty"`
}

// EPUBMetadataConfig contains EPUB-specific metadata
type EPUBMetadataConfig struct {
	Lang   string `yaml:"lang" json:"lang"`
	Rights string `yaml:"rights" json:"rights"`
}

// DebugConfig controls evidence artifacts
type DebugConfig struct {
	LogsDir     string `yaml:"logsDir" json:"logsDir"`
	Screenshots bool   `yaml:"screenshots" json:"screenshots"`
	DumpHTML    bool   `yaml:"dumpHtml" json:"dumpHtml"`
}

// HTTPConfig controls direct requests to the service
type HTTPConfig struct {
	DelayMS int `yaml:"delayMs" json:"delayMs"`
	Timeout int `yaml:"timeout" json:"timeout"`
}

// StoreConfig locates the run history database
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// ServerConfig controls the progress/control HTTP surface
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Probe names accepted in probes.enabled
const (
	ProbeNetwork    = "network"
	ProbeScript     = "script"
	ProbeDOM        = "dom"
	ProbeRawHTML    = "raw_html"
	ProbeImage      = "image"
	ProbeScreenshot = "screenshot"
)

// Detection modes
const (
	ModeWatch = "watch"
	ModeAuto  = "auto"
	ModeStep  = "step"
)

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Reader: ReaderConfig{
			ReaderURL: "https://read.amazon.com/reader",
			BaseURL:   "https://read.amazon.com",
		},
		Auth: AuthConfig{
			SignInURL:   "https://www.amazon.com/ap/signin",
			VerifyURL:   "https://read.amazon.com",
			CookieDir:   ".",
			WaitSeconds: 30,
			RememberMe:  true,
		},
		Browser: BrowserConfig{
			Headless: true,
			Width:    1920,
			Height:   1080,
		},
		Detection: DetectionConfig{
			Mode:           ModeAuto,
			MaxPages:       50,
			PollIntervalMS: 500,
			SettleDelayMS:  3000,
			TurnTimeoutMS:  10000,
			MaxStalls:      3,
			LookupRetries:  5,
		},
		Probes: ProbesConfig{
			Enabled: []string{
				ProbeNetwork, ProbeScript, ProbeDOM, ProbeRawHTML, ProbeImage, ProbeScreenshot,
			},
			MinContentLength:  20,
			MinScanTextLength: 50,
		},
		Output: OutputConfig{
			OutputPath: "./books",
			Formats:    []string{"txt", "json"},
			EPUBMetadata: EPUBMetadataConfig{
				Lang:   "en",
				Rights: "Personal use only",
			},
		},
		Debug: DebugConfig{
			LogsDir:     "logs",
			Screenshots: true,
		},
		HTTP: HTTPConfig{
			DelayMS: 1000,
			Timeout: 30,
		},
		Store: StoreConfig{
			Path: "kindle-extract.db",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

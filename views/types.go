package views

// SiteConfig holds booth-wide settings shown on every page.
type SiteConfig struct {
	Name string // BOOTH_NAME (default "GlowUp Studio")
	URL  string // BOOTH_URL  (default "http://localhost:3000")
}

// Page carries per-request data into the layout.
type Page struct {
	Site  SiteConfig
	Title string
	CSRF  string
}

// FilterCard is one entry of the filter picker.
type FilterCard struct {
	ID          string
	Name        string
	Description string
	Thumbnail   string
	OverlayURL  string
	Selected    bool
}

// CameraModel configures the capture screen.
type CameraModel struct {
	Mode       string // "photo" or "video"
	Facing     string // "user" or "environment"
	MaxSeconds int
	Formats    []string // recorder MIME types in preference order
	Error      string
}

// SourceModel describes the captured media shown as a backdrop on the
// filter and text screens.
type SourceModel struct {
	URL        string
	Video      bool
	OverlayURL string
}

// TextModel fills the caption editor.
type TextModel struct {
	Source   SourceModel
	Caption  string
	Position string // "top" or "bottom"
	MaxLen   int
	Example  string
	Error    string
}

// PreviewModel is the state of the result screen.
type PreviewModel struct {
	State       string // "processing", "ready" or "failed"
	Error       string
	Video       bool
	ArtifactURL string
	DownloadURL string
	Filename    string
	Email       EmailModel
}

// EmailModel is the state of the email form.
type EmailModel struct {
	State   string // "idle", "sending", "sent" or "failed"
	Address string
	SentTo  string
	Error   string
}

package booth

import "embed"

// EmbeddedAssets contains the static assets served under /public/:
// booth.js and booth.css.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS

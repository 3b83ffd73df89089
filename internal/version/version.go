package version

// Version is overridden at build time via -ldflags "-X gitmaya/internal/version.Version=...".
var Version = "dev"

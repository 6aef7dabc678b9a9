package version

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

// UserAgent returns the User-Agent sent to remote registries.
func UserAgent() string {
	return "stashlink/" + Version + " (+https://github.com/sydlexius/stashlink)"
}

package main

import "strings"

// Set at build time with -ldflags "-X main.buildVersion=... -X main.buildCommit=...".
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
)

func versionString() string {
	return formatVersion(buildVersion, buildCommit)
}

// formatVersion returns release versions as tagged and development builds as
// dev-<short sha>. A leading "v" is added to bare release numbers.
func formatVersion(version, commit string) string {
	v := strings.TrimSpace(version)
	if v == "" || v == "dev" {
		if c := shortCommit(commit); c != "" {
			return "dev-" + c
		}
		return "dev"
	}
	if v[0] >= '0' && v[0] <= '9' {
		v = "v" + v
	}
	return v
}

func shortCommit(commit string) string {
	c := strings.TrimSpace(commit)
	if c == "unknown" {
		return ""
	}
	if len(c) > 7 {
		c = c[:7]
	}
	return c
}

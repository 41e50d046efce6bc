// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
)

// Stamped with -ldflags -X at build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/llmchat/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version  string
	Commit   string
	Dirty    bool
	Time     string
	Go       string
	Platform string
}

// Current returns the Build stamped into this binary.
func Current() Build {
	return Build{
		Version:  Version,
		Commit:   GitCommit,
		Dirty:    GitDirty == "true",
		Time:     BuildTime,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String formats the build as "0.1.0 (abc1234-dirty, 2026-02-10T...)".
func (build Build) String() string {
	commit := build.Commit
	if build.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", build.Version, commit, build.Time)
}

// LogValue groups the build fields in a startup log record.
func (build Build) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", build.Version),
		slog.String("commit", build.Commit),
		slog.Bool("dirty", build.Dirty),
		slog.String("go", build.Go),
	)
}

// UserAgent returns the User-Agent header a binary sends to the
// completion endpoint, e.g. "llmchat/0.1.0 (go1.25.6; linux/amd64)".
// Endpoint operators see which client and version sent a request.
func (build Build) UserAgent(name string) string {
	return fmt.Sprintf("%s/%s (%s; %s)", name, build.Version, build.Go, build.Platform)
}

// Print writes the --version output for the named binary to stdout.
func Print(name string) {
	Current().write(os.Stdout, name)
}

func (build Build) write(writer io.Writer, name string) {
	fmt.Fprintf(writer, "%s %s\n  Go: %s\n  Platform: %s\n", name, build, build.Go, build.Platform)
}

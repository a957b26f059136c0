package main

import "runtime/debug"

// Version is set with -ldflags "-X main.Version=..." on release builds.
var Version = "dev"

func init() {
	if info, available := debug.ReadBuildInfo(); available {
		if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}
}

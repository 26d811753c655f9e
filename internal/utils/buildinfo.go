package utils

import (
	"runtime/debug"
)

const developmentVersion = "dev"

// GetApplicationVersion reports the module version recorded in the build
// info, falling back to a development marker for local builds.
func GetApplicationVersion() string {
	buildInfo, buildInfoAvailable := debug.ReadBuildInfo()
	if buildInfoAvailable && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	return developmentVersion
}

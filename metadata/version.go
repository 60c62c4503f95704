package metadata

import (
	"fmt"
	"runtime"
)

// Version specifies the crlprune version
var Version = "1.0.0"

// GetVersionInfo returns version information for the crlprune tool
func GetVersionInfo(prgName string) string {
	if Version == "" {
		Version = "development build"
	}

	return fmt.Sprintf("%s:\n Version: %s\n Go version: %s\n OS/Arch: %s\n",
		prgName,
		Version,
		runtime.Version(),
		fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
}

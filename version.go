package weave

// Version of the escrow ledger. Release builds overwrite it with
//
//	-ldflags "-X github.com/iov-one/weave-escrow.Version=v1.2.3"
var Version = "v0.1.0-dev"

// GitCommit set by build flags
var GitCommit = ""

// VersionString is the string to be displayed
func VersionString() string {
	if GitCommit == "" {
		return Version
	}
	return Version + " " + GitCommit
}

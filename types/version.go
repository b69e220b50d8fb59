package types

// Version is the mekewe release version, overridable via ldflags.
var Version = "0.3.0"

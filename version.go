package synx

// Version is overridden at build time with -ldflags "-X github.com/aretw0/synx.Version=...".
var Version = "dev"

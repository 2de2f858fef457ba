package app

// Version is stamped at build time with -ldflags "-X holmes/internal/app.Version=...".
// It also feeds the status cache content hash, so a new build re-evaluates
// prerequisites.
var Version = "dev"

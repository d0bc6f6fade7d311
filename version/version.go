package version

// Version wird beim Build per -ldflags "-X github.com/ollama/xcvm/version.Version=..." gesetzt
var Version string = "0.0.0"

package cmd

import (
	"io"
	"os"
	"time"

	"github.com/btcsuite/btclog/v2"
)

// defaultShutdownTimeout bounds how long serve waits for in-flight
// activities to drain (mirrored into Runtime.Shutdown's drainTimeout) once
// an interrupt signal arrives.
const defaultShutdownTimeout = 5 * time.Second

func buildConsoleHandler() btclog.Handler {
	return btclog.NewDefaultHandler(os.Stdout)
}

func buildFileHandler(w io.Writer) btclog.Handler {
	return btclog.NewDefaultHandler(w)
}

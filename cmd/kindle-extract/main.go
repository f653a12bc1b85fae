// kindle-extract captures the text of books open in the Kindle Cloud
// Reader and writes them as text, JSON and EPUB.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
)

const (
	AppName    = "kindle-extract"
	AppVersion = "1.0.0"
)

func main() {
	root := newRootCmd()
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(AppVersion),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}

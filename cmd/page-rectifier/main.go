package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	pagerectifier "github.com/menta2k/page-rectifier"
)

func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(pagerectifier.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// Command fasttext-util trains, quantizes, evaluates and queries fastText
// models through libfasttext.
package main

import (
	"go.uber.org/zap"

	"github.com/tsawler/go-fasttext/cgo_bridge"
	"github.com/tsawler/go-fasttext/cli"
	"github.com/tsawler/go-fasttext/native"
)

func main() {
	cli.Execute(func(log *zap.Logger) native.API {
		return cgo_bridge.NewBridge(log)
	})
}

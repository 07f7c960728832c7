package main

import (
	"os"

	"github.com/sjqzhang/go-resumable/cmd/server"
	"github.com/sjqzhang/go-resumable/cmd/sweep"
	"github.com/sjqzhang/go-resumable/cmd/upload"
	"github.com/sjqzhang/go-resumable/cmd/version"
	dfs "github.com/sjqzhang/go-resumable/server"
	"github.com/spf13/cobra"
)

var (
	VERSION     string
	BUILD_TIME  string
	GO_VERSION  string
	GIT_VERSION string
)

func main() {
	dfs.VERSION = VERSION
	dfs.BUILD_TIME = BUILD_TIME
	dfs.GO_VERSION = GO_VERSION
	dfs.GIT_VERSION = GIT_VERSION
	root := cobra.Command{Use: "resumable"}
	root.AddCommand(
		version.Cmd,
		server.Cmd,
		upload.Cmd,
		sweep.Cmd,
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

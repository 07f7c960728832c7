package server

import (
	"github.com/sjqzhang/go-resumable/server"
	"github.com/spf13/cobra"
)

var confPath string

// Cmd run http server
var Cmd = &cobra.Command{
	Use:   "server",
	Short: "Run resumable upload server",
	Long:  `Run resumable upload server`,
	Run: func(cmd *cobra.Command, args []string) {
		main()
	},
}

func init() {
	Cmd.Flags().StringVarP(&confPath, "conf", "c", "", "config file, default conf/cfg.json")
}

func main() {
	server.InitServer(confPath)
	server.RegisterExit()
	server.Start()
}

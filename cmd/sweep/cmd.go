package sweep

import (
	"context"
	"fmt"
	"os"

	"github.com/sjqzhang/go-resumable/server"
	"github.com/spf13/cobra"
)

var confPath string

// Cmd removes expired uploads once and exits. The server must not hold the
// leveldb metadata store while it runs.
var Cmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired uploads",
	Long:  `Remove expired uploads and their parts from the configured stores`,
	Run: func(cmd *cobra.Command, args []string) {
		server.InitServer(confPath)
		n, err := server.Sweep(context.Background())
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Printf("removed %d expired uploads\n", n)
	},
}

func init() {
	Cmd.Flags().StringVarP(&confPath, "conf", "c", "", "config file, default conf/cfg.json")
}

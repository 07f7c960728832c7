package upload

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/sjqzhang/go-resumable/client"
)

var (
	endpoint string
	filePath string
	fileID   string
	metadata []string
	headers  []string
	retries  int
)

// Cmd uploads one file, resuming the upload named by --id when given.
var Cmd = &cobra.Command{
	Use:          "upload",
	Short:        "Upload a file to a tus endpoint",
	Long:         `Upload a file to a tus endpoint. A failed upload prints its id, pass it with --id to resume.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	Cmd.Flags().StringVarP(&endpoint, "url", "u", "http://127.0.0.1:8080/files/", "upload endpoint")
	Cmd.Flags().StringVarP(&filePath, "file", "f", "", "file to upload")
	Cmd.Flags().StringVar(&fileID, "id", "", "resume this upload id")
	Cmd.Flags().StringArrayVarP(&metadata, "meta", "m", nil, "extra metadata as key=value")
	Cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header as 'Key: value'")
	Cmd.Flags().IntVar(&retries, "retry", 3, "retries of the metadata requests")
	Cmd.MarkFlagRequired("file")
}

func parsePairs(pairs []string, sep string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		i := strings.Index(p, sep)
		if i <= 0 {
			return nil, fmt.Errorf("invalid pair %q", p)
		}
		values[strings.TrimSpace(p[:i])] = strings.TrimSpace(p[i+len(sep):])
	}
	return values, nil
}

func run(ctx context.Context) error {
	meta, err := parsePairs(metadata, "=")
	if err != nil {
		return err
	}
	extra, err := parsePairs(headers, ":")
	if err != nil {
		return err
	}
	file, err := client.OpenFile(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	opts := []client.Option{client.WithRetry(retries, time.Second, 30*time.Second)}
	for k, v := range extra {
		opts = append(opts, client.WithHeader(k, v))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var failed error
	client.NewUploader(opts...).Upload(ctx, endpoint, file, client.Options{
		FileID:   fileID,
		Metadata: meta,
		Handler: client.HandlerFuncs{
			Progress: func(e client.Progress) {
				fmt.Printf("\r%3d%% %s / %s", e.Progress, units.HumanSize(float64(e.BytesWritten)), units.HumanSize(float64(e.BytesTotal)))
			},
			Completed: func(e client.Completed) {
				fmt.Printf("\nuploaded %s as %s\n", file.FileName, e.FileID)
			},
			Failed: func(e client.Failed) {
				failed = e.Err
				fmt.Printf("\nupload failed: %v\n", e.Err)
				if e.FileID != "" {
					fmt.Printf("resume with: --id %s\n", e.FileID)
				}
			},
		},
	})
	return failed
}

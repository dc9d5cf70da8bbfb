package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mini_hdfs_project/client"
)

func main() {
	root := &cobra.Command{
		Use:          "dfs",
		Short:        "Upload and download files through a namenode",
		SilenceUsage: true,
	}
	root.AddCommand(uploadCmd(), downloadCmd(), statusCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path/to/file> <namenode>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client.NewClient(args[1]).UploadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded %s: %d bytes in %d chunks\n", result.Filename, result.Size, len(result.ChunkIDs))
			if len(result.UnderReplicated) > 0 {
				fmt.Printf("Warning: %d chunks are under-replicated\n", len(result.UnderReplicated))
			}
			return nil
		},
	}
}

func downloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <filename> <namenode> [out]",
		Short: "Download a file, never overwriting a local one",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := ""
			if len(args) == 3 {
				out = args[2]
			}
			path, err := client.NewClient(args[1]).DownloadFile(args[0], out)
			if err != nil {
				return err
			}
			fmt.Printf("Downloaded successfully as '%s'\n", path)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <namenode>",
		Short: "Print datanode liveness, files and chunk placement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client.NewClient(args[0]).Status()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
}

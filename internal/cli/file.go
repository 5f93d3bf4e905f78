package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/nextcloud-go/dav"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Work with files and folders",
	Long: `Work with files and folders over WebDAV.

Remote paths start with the owning user id, e.g. "alice/Documents/notes.md".`,
}

var fileListCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileList,
}

var fileGetCmd = &cobra.Command{
	Use:   "get [remote] [local]",
	Short: "Download a file",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runFileGet,
}

var filePutCmd = &cobra.Command{
	Use:   "put [local] [remote]",
	Short: "Upload a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runFilePut,
}

var fileMkdirCmd = &cobra.Command{
	Use:   "mkdir [path]",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileMkdir,
}

var fileRmCmd = &cobra.Command{
	Use:   "rm [path]",
	Short: "Delete a file or folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileRm,
}

func init() {
	fileCmd.AddCommand(fileListCmd)
	fileCmd.AddCommand(fileGetCmd)
	fileCmd.AddCommand(filePutCmd)
	fileCmd.AddCommand(fileMkdirCmd)
	fileCmd.AddCommand(fileRmCmd)
	rootCmd.AddCommand(fileCmd)
}

func runFileList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	infos, err := dav.ListFolder(cmd.Context(), client, args[0], dav.PropsBasic, 1)
	if err != nil {
		return err
	}
	for _, info := range infos {
		marker := " "
		if info.Folder {
			marker = "d"
		}
		modified := ""
		if !info.LastModified.IsZero() {
			modified = info.LastModified.Format("2006-01-02 15:04")
		}
		fmt.Printf("%s %10d  %16s  %s\n", marker, info.Length, modified, info.Path)
	}
	return nil
}

func runFileGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	remote := args[0]
	local := filepath.Base(remote)
	if len(args) > 1 {
		local = args[1]
	}
	stream, err := dav.Download(cmd.Context(), client, remote)
	if err != nil {
		return err
	}
	defer stream.Close()

	out, err := os.Create(local)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, stream); err != nil {
		return err
	}
	fmt.Printf("Downloaded %s to %s\n", remote, local)
	return nil
}

func runFilePut(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	fileID, err := dav.Upload(cmd.Context(), client, args[1], in)
	if err != nil {
		return err
	}
	if fileID != "" {
		fmt.Printf("Uploaded %s as file id %s\n", args[1], fileID)
	} else {
		fmt.Printf("Uploaded %s\n", args[1])
	}
	return nil
}

func runFileMkdir(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return dav.Mkdir(cmd.Context(), client, args[0])
}

func runFileRm(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return dav.Delete(cmd.Context(), client, args[0])
}

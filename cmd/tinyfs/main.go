// Command tinyfs manages TFS disk images: formatting, inspection, file
// transfer in and out, and mounting through FUSE.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tinyfs-go/tinyfs"
	"github.com/tinyfs-go/tinyfs/blockdev"
	"github.com/tinyfs-go/tinyfs/disks"
	"github.com/tinyfs-go/tinyfs/fusefs"
	"github.com/tinyfs-go/tinyfs/tfs"
)

func main() {
	app := cli.App{
		Usage: "Manage Tiny File System disk images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "image",
				Value: "DISKFILE",
				Usage: "path of the disk image",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "format",
				Usage:     "Create or wipe an image",
				Action:    formatImage,
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "profile",
						Value: "default",
						Usage: fmt.Sprintf("image profile, one of %v", disks.Slugs()),
					},
				},
			},
			{
				Name:   "fsck",
				Usage:  "Audit the image's structural invariants",
				Action: checkImage,
			},
			{
				Name:      "stat",
				Usage:     "Print the attributes of a file or directory",
				Action:    statPath,
				ArgsUsage: "PATH",
			},
			{
				Name:      "ls",
				Usage:     "List a directory",
				Action:    listDir,
				ArgsUsage: "PATH",
			},
			{
				Name:      "mkdir",
				Usage:     "Create a directory",
				Action:    makeDir,
				ArgsUsage: "PATH",
			},
			{
				Name:      "rmdir",
				Usage:     "Remove an empty directory",
				Action:    removeDir,
				ArgsUsage: "PATH",
			},
			{
				Name:      "rm",
				Usage:     "Remove a file",
				Action:    removeFile,
				ArgsUsage: "PATH",
			},
			{
				Name:      "read",
				Usage:     "Copy a file's contents to standard output",
				Action:    readFile,
				ArgsUsage: "PATH",
			},
			{
				Name:      "write",
				Usage:     "Store standard input as a file, creating it if needed",
				Action:    writeFile,
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "offset",
						Usage: "byte offset to write at",
					},
				},
			},
			{
				Name:      "mount",
				Usage:     "Mount the image through FUSE (formats a missing image first)",
				Action:    mountImage,
				ArgsUsage: "MOUNTPOINT",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "log the FUSE request stream",
					},
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// openImage mounts an existing image for one subcommand invocation.
func openImage(c *cli.Context) (*tfs.FileSystem, error) {
	dev, err := blockdev.Open(c.String("image"), tfs.DefaultBlockSize)
	if err != nil {
		return nil, err
	}
	fsys := tfs.New(dev)
	err = fsys.Mount()
	if err != nil {
		dev.Close()
		return nil, err
	}
	return fsys, nil
}

func requirePath(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit("expected exactly one PATH argument", 2)
	}
	return c.Args().First(), nil
}

func formatImage(c *cli.Context) error {
	profile, err := disks.GetPredefinedProfile(c.String("profile"))
	if err != nil {
		return err
	}
	params := tfs.Params{
		BlockSize:     profile.BlockSize,
		MaxInodes:     profile.MaxInodes,
		MaxDataBlocks: profile.MaxDataBlocks,
	}

	dev, err := blockdev.Create(
		c.String("image"), uint(params.BlockSize), uint(params.TotalBlocks()))
	if err != nil {
		return err
	}
	fsys := tfs.New(dev)
	err = fsys.Format(params)
	if err != nil {
		dev.Close()
		return err
	}

	fmt.Printf("formatted %s with profile %q (%d bytes)\n",
		c.String("image"), profile.Slug, profile.TotalSizeBytes())
	return fsys.Unmount()
}

func checkImage(c *cli.Context) error {
	fsys, err := openImage(c)
	if err != nil {
		return err
	}
	defer fsys.Unmount()

	err = fsys.Check()
	if err != nil {
		return err
	}
	fmt.Println("clean")
	return nil
}

func statPath(c *cli.Context) error {
	path, err := requirePath(c)
	if err != nil {
		return err
	}
	fsys, err := openImage(c)
	if err != nil {
		return err
	}
	defer fsys.Unmount()

	stat, err := fsys.GetAttr(path)
	if err != nil {
		return err
	}
	fmt.Printf("inode:  %d\n", stat.InodeNumber)
	fmt.Printf("mode:   %s\n", stat.ModeFlags)
	fmt.Printf("links:  %d\n", stat.Nlinks)
	fmt.Printf("size:   %d\n", stat.Size)
	fmt.Printf("blocks: %d\n", stat.NumBlocks)
	fmt.Printf("mtime:  %s\n", stat.LastModified)
	return nil
}

func listDir(c *cli.Context) error {
	path := "/"
	if c.NArg() > 0 {
		path = c.Args().First()
	}
	fsys, err := openImage(c)
	if err != nil {
		return err
	}
	defer fsys.Unmount()

	return fsys.ReadDir(path, func(name string, stat tinyfs.FileStat) error {
		fmt.Printf("%s %8d  %s\n", stat.ModeFlags, stat.Size, name)
		return nil
	})
}

func makeDir(c *cli.Context) error {
	path, err := requirePath(c)
	if err != nil {
		return err
	}
	fsys, err := openImage(c)
	if err != nil {
		return err
	}
	defer fsys.Unmount()
	return fsys.Mkdir(path, 0o755)
}

func removeDir(c *cli.Context) error {
	path, err := requirePath(c)
	if err != nil {
		return err
	}
	fsys, err := openImage(c)
	if err != nil {
		return err
	}
	defer fsys.Unmount()
	return fsys.Rmdir(path)
}

func removeFile(c *cli.Context) error {
	path, err := requirePath(c)
	if err != nil {
		return err
	}
	fsys, err := openImage(c)
	if err != nil {
		return err
	}
	defer fsys.Unmount()
	return fsys.Unlink(path)
}

func readFile(c *cli.Context) error {
	path, err := requirePath(c)
	if err != nil {
		return err
	}
	fsys, err := openImage(c)
	if err != nil {
		return err
	}
	defer fsys.Unmount()

	stat, err := fsys.GetAttr(path)
	if err != nil {
		return err
	}
	buffer := make([]byte, stat.Size)
	count, err := fsys.ReadAt(path, buffer, 0)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(buffer[:count])
	return err
}

func writeFile(c *cli.Context) error {
	path, err := requirePath(c)
	if err != nil {
		return err
	}
	fsys, err := openImage(c)
	if err != nil {
		return err
	}
	defer fsys.Unmount()

	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}

	err = fsys.Create(path, 0o666)
	if err != nil && !errors.Is(err, tinyfs.ErrExists) {
		return err
	}
	count, err := fsys.WriteAt(path, content, c.Int64("offset"))
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes to %s\n", count, path)
	return nil
}

func mountImage(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one MOUNTPOINT argument", 2)
	}

	fsys, err := tfs.Init(c.String("image"), tfs.Params{})
	if err != nil {
		return err
	}
	defer fsys.Unmount()

	server, err := fusefs.Mount(c.Args().First(), fsys, c.Bool("debug"))
	if err != nil {
		return err
	}
	log.Printf("serving %s on %s", c.String("image"), c.Args().First())
	server.Wait()
	return nil
}

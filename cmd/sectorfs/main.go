// sectorfs - Manipulate sectorfs disk images
//
// Usage:
//
//	sectorfs <image> format [-sectors N] [-entries M]
//	sectorfs <image> info
//	sectorfs <image> create <path> <size>
//	sectorfs <image> mkdir <path>
//	sectorfs <image> put <hostfile> <path>
//	sectorfs <image> cat <path>
//	sectorfs <image> rm <path>
//	sectorfs <image> ls [-r] [path]
//	sectorfs <image> print
//	sectorfs <image> check
//
// Every command accepts -v to log what the filesystem does to stderr.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/keks/sectorfs"
	"github.com/keks/sectorfs/filesys"
)

func main() {
	log.SetFlags(0)

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, sectorfs.ErrCorrupt) {
			log.Fatalf("sectorfs: %v (image is unsafe to use)", err)
		}
		log.Fatalf("sectorfs: %v", err)
	}
}

type command struct {
	flags *flag.FlagSet
	v     *bool
}

func newCommand(name string, stderr io.Writer) *command {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return &command{
		flags: fs,
		v:     fs.Bool("v", false, "log filesystem operations to stderr"),
	}
}

func (c *command) options(stderr io.Writer) []filesys.Option {
	if !*c.v {
		return nil
	}
	return []filesys.Option{filesys.WithLogger(log.New(stderr, "", 0))}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: sectorfs <image> <command> [options] [args]")
	}

	imagePath := args[0]
	name := args[1]
	cmd := newCommand(name, stderr)

	if name == "format" {
		return runFormat(imagePath, cmd, args[2:], stderr)
	}

	recursive := cmd.flags.Bool("r", false, "list recursively (ls)")
	if err := cmd.flags.Parse(args[2:]); err != nil {
		return err
	}

	file, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer file.Close()

	fs, err := filesys.Mount(file, cmd.options(stderr)...)
	if err != nil {
		return fmt.Errorf("mounting %s: %w", imagePath, err)
	}

	if err := dispatch(fs, name, cmd.flags.Args(), *recursive, stdout); err != nil {
		return err
	}

	return fs.Close()
}

func runFormat(imagePath string, cmd *command, args []string, stderr io.Writer) error {
	sectors := cmd.flags.Int("sectors", sectorfs.DefaultNumSectors, "number of sectors")
	entries := cmd.flags.Int("entries", sectorfs.DefaultDirEntries, "entries per directory")
	if err := cmd.flags.Parse(args); err != nil {
		return err
	}

	file, err := os.OpenFile(imagePath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating image: %w", err)
	}
	defer file.Close()

	opts := append(cmd.options(stderr),
		filesys.WithNumSectors(*sectors),
		filesys.WithDirEntries(*entries),
	)

	fs, err := filesys.Format(file, opts...)
	if err != nil {
		return fmt.Errorf("formatting %s: %w", imagePath, err)
	}

	return fs.Close()
}

func dispatch(fs *filesys.FileSystem, name string, args []string, recursive bool, out io.Writer) error {
	need := func(n int, usage string) error {
		if len(args) != n {
			return fmt.Errorf("usage: %s %s", name, usage)
		}
		return nil
	}

	switch name {
	case "info":
		info := fs.Info()
		fmt.Fprintf(out, "Volume ID: %s\n", info.VolumeID)
		fmt.Fprintf(out, "Sectors: %d (%d bytes each)\n", info.NumSectors, sectorfs.SectorSize)
		fmt.Fprintf(out, "Free sectors: %d\n", info.FreeSectors)
		fmt.Fprintf(out, "Entries per directory: %d\n", info.DirEntries)
		fmt.Fprintf(out, "Max file size: %d\n", info.MaxFileSize)
		return nil
	case "create":
		if err := need(2, "<path> <size>"); err != nil {
			return err
		}
		size, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("size %q: %w", args[1], err)
		}
		return fs.Create(args[0], size)
	case "mkdir":
		if err := need(1, "<path>"); err != nil {
			return err
		}
		return fs.Mkdir(args[0])
	case "put":
		if err := need(2, "<hostfile> <path>"); err != nil {
			return err
		}
		return put(fs, args[0], args[1])
	case "cat":
		if err := need(1, "<path>"); err != nil {
			return err
		}
		return cat(fs, args[0], out)
	case "rm":
		if err := need(1, "<path>"); err != nil {
			return err
		}
		return fs.Remove(args[0])
	case "ls":
		path := "/"
		if len(args) > 0 {
			path = args[0]
		}
		if recursive {
			return fs.RecursiveList(out, path)
		}
		return fs.List(out, path)
	case "print":
		return fs.Print(out)
	case "check":
		if err := fs.Check(); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil
	default:
		return fmt.Errorf("unknown command: %s (use format, info, create, mkdir, put, cat, rm, ls, print or check)", name)
	}
}

func put(fs *filesys.FileSystem, hostPath, path string) error {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return err
	}

	if err := fs.Create(path, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return err
	}

	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

func cat(fs *filesys.FileSystem, path string, out io.Writer) error {
	fi, err := fs.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	f, err := fs.Open(path)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, io.NewSectionReader(f, 0, f.Length()))
	return err
}

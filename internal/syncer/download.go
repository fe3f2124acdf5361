package syncer

import (
	"errors"
	"path/filepath"

	"remote-sync/internal/ledger"
	"remote-sync/internal/messages"
	"remote-sync/internal/remote"
)

// DownloadOptions parameterize a Download command.
type DownloadOptions struct {
	// Forced downloads transfer even when the remote copy is not newer.
	Forced    bool
	Whitelist []string
	Progress  *messages.Progress

	// skip marks a child whose remote entry is not newer than the local file.
	skip  bool
	isDir bool
}

// Download fetches path from every applicable connection. Directories are
// mirrored recursively. It returns the names the file was fetched from.
func (e *Engine) Download(path string, opts DownloadOptions) []string {
	c := e.newCommand(KindDownload, path, filter{whitelist: opts.Whitelist})
	defer c.finish()

	if !c.ready() {
		if opts.Progress != nil {
			opts.Progress.Step()
		}
		return nil
	}

	isDir := opts.isDir
	if !isDir {
		if info, err := e.Fs.Stat(c.path); err == nil && info.IsDir() {
			isDir = true
		}
	}

	if isDir {
		e.downloadDir(c, opts)
		return nil
	}

	if opts.skip {
		messages.Verbose(e.Sink, "", "Skipping download, remote is not newer {%s}", c.display)
		if opts.Progress != nil {
			opts.Progress.Step()
		}
		return nil
	}

	done := c.each(func(conn remote.Connection) error {
		messages.Verbose(e.Sink, conn.Name(), "Downloading {%s}", c.display)
		if err := conn.Get(c.path); err != nil {
			return err
		}
		e.record(c.cfg.FilePath, conn.Name(), c.path, ledger.Download)
		return nil
	})

	c.report(done, opts.Progress, "downloaded")
	return done
}

type child struct {
	path  string
	name  string
	skip  bool
	isDir bool
}

// downloadDir lists the directory on every connection and runs one child
// Download per remote entry, whitelisted to the connection it came from.
func (e *Engine) downloadDir(c *command, opts DownloadOptions) {
	var children []child

	c.each(func(conn remote.Connection) error {
		entries, err := conn.List(c.path)
		if errors.Is(err, remote.ErrNotFound) {
			messages.Verbose(e.Sink, conn.Name(), "Folder not found on remote {%s}", c.display)
			return nil
		}
		if err != nil {
			return err
		}

		if err := e.Fs.MkdirAll(c.path, 0755); err != nil {
			return err
		}

		for _, entry := range entries {
			childPath := filepath.Join(c.path, entry.Name)
			skip := false
			if !opts.Forced && !entry.IsDir {
				if info, err := e.Fs.Stat(childPath); err == nil && !entry.IsNewerThan(info.ModTime()) {
					skip = true
				}
			}
			children = append(children, child{path: childPath, name: conn.Name(), skip: skip, isDir: entry.IsDir})
		}
		return nil
	})

	if opts.Progress != nil {
		for _, ch := range children {
			opts.Progress.Add(ch.name + ":" + ch.path)
		}
		opts.Progress.Step()
	}

	for _, ch := range children {
		e.Download(ch.path, DownloadOptions{
			Forced:    opts.Forced,
			Whitelist: []string{ch.name},
			Progress:  opts.Progress,
			skip:      ch.skip,
			isDir:     ch.isDir,
		})
	}
}

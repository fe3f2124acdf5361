package syncer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"remote-sync/internal/decision"
	"remote-sync/internal/ledger"
	"remote-sync/internal/messages"
	"remote-sync/internal/remote"
)

// RenameResult tells what a Rename did. Pending is set when remote conflicts
// wait for a decision; nothing has been renamed in that case.
type RenameResult struct {
	Renamed []string
	Exists  []string
	Pending *decision.Pending
}

// Rename renames path to newName (a base name) on every connection and then
// locally. When the new name is taken on any connection the user decides
// between cancelling and overwriting.
func (e *Engine) Rename(path, newName string) RenameResult {
	c := e.newCommand(KindRename, path, filter{})
	if newName == "" || strings.ContainsRune(newName, filepath.Separator) {
		c.closed = "invalid new name"
		c.ready()
		c.finish()
		return RenameResult{}
	}

	if !c.ready() {
		c.finish()
		e.renameLocal(path, newName)
		return RenameResult{}
	}

	target := filepath.Join(filepath.Dir(c.path), newName)
	var exists []string
	c.each(func(conn remote.Connection) error {
		entries, err := conn.List(target)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			exists = append(exists, conn.Name())
		}
		return nil
	})
	c.finish()

	if len(exists) == 0 {
		return RenameResult{Renamed: e.performRename(path, newName, false)}
	}

	messages.Status(e.Sink, strings.Join(exists, ","), "Rename target %s already exists", newName)
	choices := []string{
		fmt.Sprintf("Such file already exists in <%s> - cancel rename?", strings.Join(exists, ",")),
		"Overwrite target",
	}
	pending := e.Decisions.Propose(choices, func(index int) {
		if index != 1 {
			messages.Status(e.Sink, "", "Rename cancelled {%s}", c.display)
			return
		}
		e.Go(func() { e.performRename(path, newName, true) })
	})
	return RenameResult{Exists: exists, Pending: pending}
}

// performRename renames on every connection, then renames the local file
// regardless of remote failures.
func (e *Engine) performRename(path, newName string, forced bool) []string {
	c := e.newCommand(KindRename, path, filter{})
	defer c.finish()

	var done []string
	if c.ready() {
		done = c.each(func(conn remote.Connection) error {
			messages.Verbose(e.Sink, conn.Name(), "Renaming {%s} to %s", c.display, newName)
			if err := conn.Rename(c.path, newName, forced); err != nil {
				return err
			}
			e.record(c.cfg.FilePath, conn.Name(), filepath.Join(filepath.Dir(c.path), newName), ledger.Rename)
			return nil
		})
	}

	e.renameLocal(path, newName)
	c.report(done, nil, "renamed to "+newName)
	return done
}

func (e *Engine) renameLocal(path, newName string) {
	target := filepath.Join(filepath.Dir(path), newName)
	if err := e.Fs.Rename(path, target); err != nil {
		messages.Failure(e.Sink, "", "Local rename failed {"+filepath.Base(path)+"}", err)
		return
	}
	e.Resolver.Invalidate(path)
}

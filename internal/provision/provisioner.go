package provision

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// DefaultFolder is the bundle folder holding the database assets.
	DefaultFolder = "server-data"

	// DefaultBufferSize is the copy buffer size in bytes.
	DefaultBufferSize = 4096

	// dbSuffix is matched literally and case-sensitively.
	dbSuffix = ".db"

	dirPermissions = 0750
)

// Options configures a Provisioner.
type Options struct {
	// Folder is the bundle folder to list. Defaults to DefaultFolder.
	Folder string

	// DestDir receives the copies. Created with parents if absent.
	DestDir string

	// BufferSize bounds memory per copy. Defaults to DefaultBufferSize.
	BufferSize int

	// AtomicReplace writes each file to a temp file in DestDir and renames
	// it over the target, so an interrupted copy never leaves a torn file.
	AtomicReplace bool
}

// Logger defines the logging interface for the provisioner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Provisioner copies database assets from a bundle into a directory.
//
// A Provisioner is not safe for concurrent Provision calls against the same
// destination; the startup task guarantees a single caller.
type Provisioner struct {
	bundle fs.FS
	opts   Options
	logger Logger
}

// New creates a Provisioner reading from bundle.
func New(bundle fs.FS, opts Options) *Provisioner {
	if opts.Folder == "" {
		opts.Folder = DefaultFolder
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &Provisioner{
		bundle: bundle,
		opts:   opts,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the provisioner.
func (p *Provisioner) SetLogger(logger Logger) {
	p.logger = logger
}

// DestDir returns the directory copies are written to.
func (p *Provisioner) DestDir() string {
	return p.opts.DestDir
}

// Provision copies every ".db" file of the bundle folder into the
// destination directory, overwriting existing copies. It returns the number
// of files copied. An absent or empty folder is a successful pass with zero
// copies.
func (p *Provisioner) Provision() (int, error) {
	entries, err := fs.ReadDir(p.bundle, p.opts.Folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Info("bundle folder absent, nothing to provision", "folder", p.opts.Folder)
			return 0, nil
		}
		return 0, &Error{Op: "list", Err: err}
	}

	if err := os.MkdirAll(p.opts.DestDir, dirPermissions); err != nil {
		return 0, &Error{Op: "mkdir", Err: err}
	}

	buf := make([]byte, p.opts.BufferSize)
	copied := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, dbSuffix) {
			p.logger.Debug("skipping non-database asset", "file", name)
			continue
		}
		if entry.IsDir() {
			p.logger.Debug("skipping directory", "file", name)
			continue
		}

		if err := p.copyFile(name, buf); err != nil {
			p.logger.Error("provisioning stopped", "file", name, "copied", copied, "error", err)
			return copied, err
		}
		copied++
		p.logger.Debug("provisioned database", "file", name)
	}

	p.logger.Info("provisioning pass complete", "copied", copied, "dest", p.opts.DestDir)
	return copied, nil
}

// copyFile streams one asset into DestDir.
func (p *Provisioner) copyFile(name string, buf []byte) error {
	in, err := p.bundle.Open(path.Join(p.opts.Folder, name))
	if err != nil {
		return &Error{Op: "open", File: name, Err: err}
	}
	defer in.Close() //nolint:errcheck // Read-only source

	target := filepath.Join(p.opts.DestDir, name)
	if p.opts.AtomicReplace {
		return p.replaceAtomic(name, target, in, buf)
	}

	out, err := os.Create(target) //nolint:gosec // Name comes from the bundle listing
	if err != nil {
		return &Error{Op: "create", File: name, Err: err}
	}
	if err := streamCopy(out, in, buf); err != nil {
		out.Close() //nolint:errcheck // Already failing
		return &Error{Op: "copy", File: name, Err: err}
	}
	if err := out.Close(); err != nil {
		return &Error{Op: "close", File: name, Err: err}
	}
	return nil
}

// replaceAtomic writes to a temp file beside target and renames it into
// place. On failure the temp file is removed and target is untouched.
func (p *Provisioner) replaceAtomic(name, target string, in io.Reader, buf []byte) error {
	tmp, err := os.CreateTemp(p.opts.DestDir, "."+name+".*.tmp")
	if err != nil {
		return &Error{Op: "create", File: name, Err: err}
	}
	tmpName := tmp.Name()

	fail := func(op string, err error) error {
		tmp.Close()        //nolint:errcheck // Already failing
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup
		return &Error{Op: op, File: name, Err: err}
	}

	if err := streamCopy(tmp, in, buf); err != nil {
		return fail("copy", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup
		return &Error{Op: "close", File: name, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup
		return &Error{Op: "rename", File: name, Err: err}
	}
	return nil
}

// streamCopy copies through buf only. Hiding ReaderFrom and WriterTo keeps
// io.CopyBuffer from bypassing the buffer.
func streamCopy(dst io.Writer, src io.Reader, buf []byte) error {
	_, err := io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf)
	return err
}

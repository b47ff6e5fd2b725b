package manifest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/darwinbuild/darwinxref/internal/inventory/domain"
	"github.com/darwinbuild/darwinxref/internal/log"
	"github.com/darwinbuild/darwinxref/internal/macho"
	"github.com/darwinbuild/darwinxref/internal/tracing"
)

// Option configures a Builder.
type Option func(*Builder)

// FileSystem sets the filesystem that roots are read from.
func FileSystem(afs afero.Fs) Option {
	return func(b *Builder) { b.fs = afs }
}

// WithNormalizer sets the checksum normalizer for Mach-O images.
func WithNormalizer(n Normalizer) Option {
	return func(b *Builder) { b.normalizer = n }
}

// WithTracer sets the tracer used for registration spans.
func WithTracer(t trace.Tracer) Option {
	return func(b *Builder) { b.tracer = t }
}

// Builder writes manifests and registers files into a repository.
type Builder struct {
	fs         afero.Fs
	repo       domain.Repository
	out        io.Writer
	normalizer Normalizer
	tracer     trace.Tracer
}

// New returns a Builder that registers into repo and writes manifest lines
// to out. It reads the OS filesystem unless FileSystem is given.
func New(repo domain.Repository, out io.Writer, opts ...Option) *Builder {
	b := &Builder{
		fs:     afero.NewOsFs(),
		repo:   repo,
		out:    out,
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, apply := range opts {
		apply(b)
	}
	return b
}

// RegisterTree walks root and registers everything below it, replacing
// what was registered for (build, project). Regular files are checksummed.
// It returns the number of files and symlinks registered.
func (b *Builder) RegisterTree(ctx context.Context, build, project, root string) (int, error) {
	return b.register(ctx, tracing.SpanRegisterTree, build, project, root, true, func(s *session) error {
		return s.walk(root)
	})
}

// RegisterListing registers the paths read from in, one per line,
// relative to root. Nothing is checksummed.
func (b *Builder) RegisterListing(ctx context.Context, build, project, root string, in io.Reader) (int, error) {
	return b.register(ctx, tracing.SpanRegisterListing, build, project, root, false, func(s *session) error {
		return s.listing(root, in)
	})
}

func (b *Builder) register(ctx context.Context, spanName, build, project, root string, checksum bool, fill func(*session) error) (int, error) {
	ctx, span := b.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String(tracing.AttrBuild, build),
		attribute.String(tracing.AttrProject, project),
		attribute.String(tracing.AttrRoot, root),
	))
	defer span.End()

	reg, err := b.repo.Begin(build, project)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return 0, fmt.Errorf("failed to begin registration: %w", err)
	}

	s := &session{b: b, reg: reg, checksum: checksum}
	if err := fill(s); err != nil {
		_ = reg.Rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
		log.Debug(log.CatManifest, "registration failed", "project", project, "root", root, "error", err)
		return 0, err
	}

	_, commitSpan := b.tracer.Start(ctx, tracing.SpanCommit)
	err = reg.Commit()
	commitSpan.End()
	if err != nil {
		_ = reg.Rollback()
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return 0, fmt.Errorf("failed to commit %s: %w", project, err)
	}

	span.SetAttributes(
		attribute.Int(tracing.AttrFileCount, s.files),
		attribute.Int(tracing.AttrDependencies, s.deps),
	)
	log.Info(log.CatManifest, "registered", "build", build, "project", project,
		"files", s.files, "dependencies", s.deps, "hashed", units.HumanSize(float64(s.hashed)))
	return s.files, nil
}

// session is one registration in progress.
type session struct {
	b        *Builder
	reg      domain.Registration
	checksum bool

	files  int
	deps   int
	hashed int64
}

func (s *session) walk(root string) error {
	fi, err := s.b.fs.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !fi.IsDir() {
		return nil
	}
	st := newStatInfo(fi)
	entries, err := afero.ReadDir(s.b.fs, root)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", root, err)
	}
	return s.walkEntries(root, "", entries, st)
}

// walkEntries visits entries in order, descending into each directory right
// after its own line. Directories on another device than the root are
// listed but not entered.
func (s *session) walkEntries(dir, rel string, entries []fs.FileInfo, root statInfo) error {
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		childRel := rel + "/" + e.Name()

		fi, err := lstat(s.b.fs, full)
		if err != nil {
			log.Warn(log.CatManifest, "cannot stat (skipping)", "path", full, "error", err)
			continue
		}
		st := newStatInfo(fi)
		if err := s.visit(full, childRel, st); err != nil {
			return err
		}
		if st.kind() != kindDir {
			continue
		}
		if root.hasDev && st.hasDev && st.dev != root.dev {
			log.Debug(log.CatManifest, "not crossing device boundary", "path", full)
			continue
		}
		children, err := afero.ReadDir(s.b.fs, full)
		if err != nil {
			log.Warn(log.CatManifest, "cannot read directory (skipping)", "path", full, "error", err)
			continue
		}
		if err := s.walkEntries(full, childRel, children, root); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) listing(root string, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 4*units.KiB), units.MiB)
	for scanner.Scan() {
		rel, ok := listingPath(scanner.Text())
		if !ok {
			continue
		}
		full := filepath.Join(root, filepath.FromSlash(rel))
		fi, err := lstat(s.b.fs, full)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", full, err)
		}
		if err := s.visit(full, rel, newStatInfo(fi)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read listing: %w", err)
	}
	return nil
}

// listingPath turns a listing line into a root-relative path starting
// with "/". It reports false for lines that are skipped.
func listingPath(line string) (string, bool) {
	line = strings.TrimSuffix(line, "/")
	if line == "" || line == "." {
		return "", false
	}
	switch {
	case strings.HasPrefix(line, "./"):
		line = line[1:]
	case !strings.HasPrefix(line, "/"):
		line = "/" + line
	}
	if strings.HasPrefix(path.Base(line), "._") {
		return "", false
	}
	return line, true
}

// visit registers one entry and writes its manifest line.
func (s *session) visit(full, rel string, st statInfo) error {
	checksum := PlaceholderChecksum
	var target string

	switch st.kind() {
	case kindRegular:
		sum, err := s.file(full)
		if err != nil {
			return err
		}
		checksum = sum
	case kindSymlink:
		t, err := readlink(s.b.fs, full)
		if err != nil {
			log.Debug(log.CatManifest, "readlink failed", "path", full, "error", err)
		}
		target = t
	case kindDir:
	default:
		return nil
	}

	if st.kind() != kindDir {
		if err := s.reg.AddFile(rel); err != nil {
			return err
		}
		s.files++
	}

	size := st.size
	if st.kind() == kindDir {
		size = 0
	}
	e := Entry{Checksum: checksum, Mode: st.mode, UID: st.uid, GID: st.gid, Size: size, Path: rel, Target: target}
	if _, err := e.WriteTo(s.b.out); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// file records the dependencies of a regular file and returns its checksum.
func (s *session) file(full string) (string, error) {
	f, err := s.b.fs.Open(full)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", full, err)
	}
	defer f.Close()

	res := macho.Extract(f)
	for _, d := range res.Dependencies {
		if err := s.reg.AddDependency(d.Kind, d.Path); err != nil {
			return "", err
		}
		s.deps++
	}

	if !s.checksum {
		return PlaceholderChecksum, nil
	}
	if res.MachO && s.b.normalizer != nil && s.b.normalizer.Available() {
		return s.b.normalizer.Digest(full), nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind %s: %w", full, err)
	}
	counted := &countingReader{r: f}
	sum, err := Digest(counted)
	if err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", full, err)
	}
	s.hashed += counted.n
	return sum, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

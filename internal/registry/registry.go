package registry

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/darwinbuild/darwinxref/internal/log"
	"github.com/darwinbuild/darwinxref/internal/tracing"
)

var (
	// ErrNotFound is returned by Dispatch for an unknown command name.
	ErrNotFound = errors.New("command not found")
	// ErrNestedLoad is returned when a module initializer tries to load
	// more modules.
	ErrNestedLoad = errors.New("module load already in progress")

	errNoResolver = errors.New("no build resolver configured")
)

// Registry holds the commands available for dispatch.
type Registry struct {
	mu       sync.Mutex
	loading  bool
	commands map[string]Command

	// open is replaced in tests.
	open opener
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		open:     openPlugin,
	}
}

// Load initializes each module in order and registers the command it
// declares. Rejected modules are logged and skipped.
func (r *Registry) Load(modules ...Module) error {
	if err := r.beginLoad(); err != nil {
		return err
	}
	defer r.endLoad()

	for _, m := range modules {
		r.initialize(m)
	}
	return nil
}

func (r *Registry) beginLoad() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loading {
		return ErrNestedLoad
	}
	r.loading = true
	return nil
}

func (r *Registry) endLoad() {
	r.mu.Lock()
	r.loading = false
	r.mu.Unlock()
}

func (r *Registry) initialize(m Module) {
	if m.Initialize == nil {
		log.Warn(log.CatRegistry, "plugin has no initializer (skipping)", "source", m.Source)
		return
	}

	d := &Declarer{}
	d.cmd.Source = m.Source

	status, err := runInitializer(m.Initialize, d)
	if err != nil {
		log.Warn(log.CatRegistry, "plugin initializer failed (skipping)", "source", m.Source, "error", err)
		return
	}
	if status != 0 {
		log.Warn(log.CatRegistry, "plugin initializer returned nonzero (skipping)", "source", m.Source, "status", status)
		return
	}

	cmd := d.cmd
	if cmd.Name == "" {
		log.Warn(log.CatRegistry, "plugin has no name (skipping)", "source", m.Source)
		return
	}
	if cmd.Kind == KindNull {
		log.Warn(log.CatRegistry, "plugin has no type (skipping)", "source", m.Source, "name", cmd.Name)
		return
	}

	r.mu.Lock()
	if prev, ok := r.commands[cmd.Name]; ok {
		log.Debug(log.CatRegistry, "command replaced", "name", cmd.Name, "old", prev.Source, "new", cmd.Source)
	}
	r.commands[cmd.Name] = cmd
	r.mu.Unlock()

	log.Debug(log.CatRegistry, "command registered", "name", cmd.Name, "kind", cmd.Kind, "source", cmd.Source)
}

func runInitializer(fn InitializeFunc, d *Declarer) (status int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ProtocolVersion, d), nil
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Names returns all command names in lexicographic order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

// Dispatch runs the named command with args and returns its status.
// ctx.Current points at the command for the duration of the call.
func (r *Registry) Dispatch(ctx *Context, name string, args []string) (int, error) {
	cmd, ok := r.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if cmd.Run == nil {
		return 0, fmt.Errorf("command %s has no run function", name)
	}

	if ctx.Tracer != nil {
		parent, span := ctx.Tracer.Start(ctx.Context(), tracing.SpanDispatch,
			trace.WithAttributes(
				attribute.String(tracing.AttrCommandName, name),
				attribute.StringSlice(tracing.AttrCommandArgs, args),
			))
		defer span.End()

		prevCtx := ctx.Ctx
		ctx.Ctx = parent
		defer func() { ctx.Ctx = prevCtx }()

		status := r.run(ctx, &cmd, args)
		span.SetAttributes(attribute.Int(tracing.AttrStatus, status))
		if status != 0 {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}
		return status, nil
	}

	return r.run(ctx, &cmd, args), nil
}

func (r *Registry) run(ctx *Context, cmd *Command, args []string) int {
	prev := ctx.Current
	ctx.Current = cmd
	defer func() { ctx.Current = prev }()

	log.Debug(log.CatRegistry, "dispatch", "name", cmd.Name, "args", len(args))
	return cmd.Run(ctx, args)
}

// PrintUsage writes the usage line for name, or for every command when
// name is unknown or empty.
func (r *Registry) PrintUsage(w io.Writer, progname, name string) {
	if cmd, ok := r.Lookup(name); ok {
		printUsageLine(w, progname, cmd)
		return
	}
	for _, n := range r.Names() {
		cmd, _ := r.Lookup(n)
		printUsageLine(w, progname, cmd)
	}
}

func printUsageLine(w io.Writer, progname string, cmd Command) {
	fmt.Fprintf(w, "usage: %s [-f db] [-b build] %s %s\n", progname, cmd.Name, cmd.UsageText())
}

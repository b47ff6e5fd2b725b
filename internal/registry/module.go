package registry

import "sync"

// ProtocolVersion is passed to every module initializer.
const ProtocolVersion = 1

// InitializeSymbol is the function a plugin module must export.
const InitializeSymbol = "Initialize"

// ModuleSuffix is the file suffix of loadable plugin modules.
const ModuleSuffix = ".so"

// InitializeFunc declares a command through d. A nonzero return rejects
// the module.
type InitializeFunc func(version int, d *Declarer) int

// Module is an uninitialized command module.
type Module struct {
	// Source names where the module came from: a package path for
	// built-ins, a file path for plugins.
	Source     string
	Initialize InitializeFunc
}

// Declarer collects the command a module declares during initialization.
type Declarer struct {
	cmd Command
}

// SetName sets the command name.
func (d *Declarer) SetName(name string) { d.cmd.Name = name }

// SetKind sets the command kind. Values other than KindBasic and
// KindPropertyBacked are ignored.
func (d *Declarer) SetKind(k Kind) {
	if k == KindBasic || k == KindPropertyBacked {
		d.cmd.Kind = k
	}
}

// SetRun sets the run function.
func (d *Declarer) SetRun(fn RunFunc) { d.cmd.Run = fn }

// SetUsage sets the usage function.
func (d *Declarer) SetUsage(fn UsageFunc) { d.cmd.Usage = fn }

var (
	builtinsMu sync.Mutex
	builtins   []Module
)

// Builtin records a module compiled into the binary. Call it from init.
func Builtin(m Module) {
	builtinsMu.Lock()
	defer builtinsMu.Unlock()
	builtins = append(builtins, m)
}

// Builtins returns the compiled-in modules in registration order.
func Builtins() []Module {
	builtinsMu.Lock()
	defer builtinsMu.Unlock()
	out := make([]Module, len(builtins))
	copy(out, builtins)
	return out
}

package tracing

// Span names.
const (
	SpanDispatch        = "command.dispatch"
	SpanLoadCommands    = "registry.load"
	SpanRegisterTree    = "register.tree"
	SpanRegisterListing = "register.listing"
	SpanCommit          = "repo.commit"
)

// Span attribute keys.
const (
	AttrCommandName  = "command.name"
	AttrCommandArgs  = "command.args"
	AttrBuild        = "xref.build"
	AttrProject      = "xref.project"
	AttrRoot         = "xref.root"
	AttrFileCount    = "xref.files"
	AttrDependencies = "xref.dependencies"
	AttrModuleCount  = "registry.modules"
	AttrStatus       = "command.status"
)

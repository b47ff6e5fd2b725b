// Package registry maps command names to the modules that implement them.
//
// Built-in command packages call Builtin from init and are pulled in by
// blank-importing internal/commands/all. Additional modules can be loaded
// from a directory of Go plugins exporting an Initialize function. Each
// module fills in a Declarer; a module that leaves its name or kind unset
// is rejected with a warning. When two modules declare the same name the
// one loaded last wins.
package registry

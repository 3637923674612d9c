// Package policy checks the collected state of a run against Rego policies before
// any file or manifest is written.
//
// The Engine implements engine.Gate. Each policy is a Rego module whose package
// defines a deny set; members are either strings or objects with message,
// severity and subject keys. The input document is:
//
//	{
//	  "files":        [{"path", "package", "attributes", "features", "symlinkTarget", "hasContent"}],
//	  "dependencies": [{"name", "installAsAlias", "list", "version", "tag", "package", "feature", ...}],
//	  "resolutions":  {"name": "version"},
//	  "tasks":        [{"name", "command", "package", "feature", ...}]
//	}
//
// Violations with severity error abort the run with a POLICY_DENIED configuration
// error. Other severities are logged.
//
// # Built-in Policies
//
//   - protected-paths: no managed file under node_modules or .git
//   - dependency-lists: features must agree on the list a dependency goes into
//   - absolute-symlinks: warns about symlinks with absolute targets
//
// Project policies are loaded from the directories named by the policies setting
// of sous.yaml. A .rego file becomes a policy named after the file with warning
// severity; a .json file carries a full Policy definition.
package policy

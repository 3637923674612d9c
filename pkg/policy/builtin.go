package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		protectedPathsPolicy(),
		dependencyListsPolicy(),
		absoluteSymlinksPolicy(),
	}
}

// protectedPathsPolicy keeps features out of directories owned by other tools.
func protectedPathsPolicy() Policy {
	return Policy{
		Name:        "protected-paths",
		Description: "Managed files must not live under node_modules or .git",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"files"},
		Rego: `package sous.policies.paths

import rego.v1

protected := ["node_modules", ".git"]

deny contains violation if {
	file := input.files[_]
	segment := split(file.path, "/")[_]
	segment in protected
	features := [f | some f in file.features]
	violation := {
		"message": sprintf("%s is inside %s, which sous must not manage (declared by %s)", [file.path, segment, concat(", ", features)]),
		"severity": "error",
		"subject": file.path,
	}
}
`,
	}
}

// dependencyListsPolicy rejects features disagreeing on where a dependency belongs.
func dependencyListsPolicy() Policy {
	return Policy{
		Name:        "dependency-lists",
		Description: "A dependency must be requested into one list per package",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"dependencies"},
		Rego: `package sous.policies.dependencies

import rego.v1

key(dep) := alias if {
	alias := object.get(dep, "installAsAlias", "")
	alias != ""
}

key(dep) := dep.name if object.get(dep, "installAsAlias", "") == ""

deny contains violation if {
	some i, j
	a := input.dependencies[i]
	b := input.dependencies[j]
	i < j
	a.package == b.package
	key(a) == key(b)
	a.list != b.list
	a.feature != b.feature
	violation := {
		"message": sprintf("%s in %s is requested into %s by %s and into %s by %s", [key(a), a.package, a.list, a.feature, b.list, b.feature]),
		"severity": "error",
		"subject": key(a),
	}
}
`,
	}
}

// absoluteSymlinksPolicy flags symlinks that will not survive a checkout elsewhere.
func absoluteSymlinksPolicy() Policy {
	return Policy{
		Name:        "absolute-symlinks",
		Description: "Symlink targets should be relative to the link",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"files", "symlinks"},
		Rego: `package sous.policies.symlinks

import rego.v1

deny contains violation if {
	file := input.files[_]
	startswith(file.symlinkTarget, "/")
	violation := {
		"message": sprintf("%s links to absolute path %s", [file.path, file.symlinkTarget]),
		"severity": "warning",
		"subject": file.path,
	}
}
`,
	}
}

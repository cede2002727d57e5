// Package gitignore matches paths against gitignore-style patterns, per
// the syntax in https://git-scm.com/docs/gitignore: wildcards (*, ?,
// **), rooted patterns (/build), negations (!important.log),
// directory-only patterns (build/), and nested .gitignore files.
// Matchers are safe for concurrent use; both discovery and the file
// watcher share one.
//
//	m := gitignore.New()
//	m.AddPattern("*.log")
//	m.AddPattern("!important.log")
//
//	if m.Match("error.log", false) {
//	    // ignored
//	}
//
// Nested .gitignore files scope their patterns to their own subtree:
//
//	m.AddFromFile(filepath.Join(root, ".gitignore"), "")
//	m.AddFromFile(filepath.Join(root, "src/.gitignore"), "src")
package gitignore

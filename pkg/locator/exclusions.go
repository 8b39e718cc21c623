package locator

// defaultExcludeNames are directory names never worth descending into:
// package caches, build outputs, VCS-tool internals, and IDE/tool state.
var defaultExcludeNames = []string{
	// JavaScript
	"node_modules", "bower_components", "jspm_packages", ".npm", ".yarn", ".pnpm-store", ".next", ".nuxt",
	// Python
	".venv", "venv", "__pycache__", ".tox", ".mypy_cache", ".pytest_cache", ".ruff_cache",
	// JVM / Rust / Go / Ruby
	".gradle", ".m2", ".cargo", ".rustup", "target", "vendor", ".bundle",
	// Build outputs and caches
	"build", "dist", ".cache", ".terraform", ".terragrunt-cache",
	// Other version-control tools
	".svn", ".hg", ".bzr", "CVS",
	// Trash
	".Trash", "$Recycle.Bin",
}

// defaultExcludeGlobs cover system log, cache and pseudo-filesystem paths.
var defaultExcludeGlobs = []string{
	"/proc", "/sys", "/dev", "/run",
	"/var/log", "/var/cache", "/var/lib/docker", "/var/lib/containers",
	"/snap", "/System", "/private/var/log",
	"**/Library/Caches", "**/Library/Logs", "**/Library/Containers",
	"**/AppData/Local/Temp", "**/AppData/Local/Packages",
	"*:/Windows", "*:/ProgramData/Microsoft",
}

// DefaultExcludeNames returns a copy of the built-in name exclusions.
func DefaultExcludeNames() []string {
	return append([]string(nil), defaultExcludeNames...)
}

// DefaultExcludeGlobs returns a copy of the built-in path-glob exclusions.
func DefaultExcludeGlobs() []string {
	return append([]string(nil), defaultExcludeGlobs...)
}

// Package exitcode provides standardized exit codes for leakhook
package exitcode

// Exit codes for the leakhook CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	ReconcileFailed = 3
	FileSystemError = 4
	MissingTemplate = 5
	PermissionError = 6
	Interrupted     = 7
	ScannerNotFound = 9
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ReconcileFailed:
		return "One or more repositories failed"
	case FileSystemError:
		return "File system error"
	case MissingTemplate:
		return "Hook templates missing"
	case PermissionError:
		return "Permission error"
	case Interrupted:
		return "Interrupted"
	case ScannerNotFound:
		return "Scanner not found"
	default:
		return "Unknown error"
	}
}

package hooks

import "bytes"

// ScannerMarker identifies a hook that already runs the secret scanner. Every
// block and template leakhook writes contains it.
const ScannerMarker = "gitleaks"

// HasScannerReference reports whether hook content already invokes the scanner.
func HasScannerReference(content []byte) bool {
	return bytes.Contains(content, []byte(ScannerMarker))
}

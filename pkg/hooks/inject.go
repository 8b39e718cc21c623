package hooks

import "bytes"

// bootstrapToken appears in the line husky (v4 to v8) uses to source its
// runtime helper from an entry point.
const bootstrapToken = "husky.sh"

// InjectBlock adds block to hook content. The block goes immediately after
// the hook manager's bootstrap line when there is one and is appended
// otherwise. Existing lines are kept verbatim and in order. Content that
// already references the scanner is returned unchanged.
func InjectBlock(content, block []byte) []byte {
	if HasScannerReference(content) {
		return content
	}
	if len(block) > 0 && block[len(block)-1] != '\n' {
		block = append(append([]byte{}, block...), '\n')
	}

	if at := bootstrapLineEnd(content); at >= 0 {
		out := make([]byte, 0, len(content)+len(block)+1)
		out = append(out, content[:at]...)
		if at == 0 || content[at-1] != '\n' {
			out = append(out, '\n')
		}
		out = append(out, block...)
		return append(out, content[at:]...)
	}

	out := make([]byte, 0, len(content)+len(block)+1)
	out = append(out, content...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, block...)
}

// bootstrapLineEnd returns the offset just past the first line containing the
// bootstrap token (including its newline), or -1.
func bootstrapLineEnd(content []byte) int {
	start := 0
	for start < len(content) {
		end := bytes.IndexByte(content[start:], '\n')
		var line []byte
		next := len(content)
		if end >= 0 {
			line = content[start : start+end]
			next = start + end + 1
		} else {
			line = content[start:]
		}
		trimmed := bytes.TrimSpace(line)
		if !bytes.HasPrefix(trimmed, []byte("#")) && bytes.Contains(trimmed, []byte(bootstrapToken)) {
			return next
		}
		start = next
	}
	return -1
}

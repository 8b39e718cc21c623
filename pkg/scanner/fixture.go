package scanner

import _ "embed"

// FixtureName is the file name Verify writes the fixture under.
const FixtureName = "fake-credentials.txt"

//go:embed fixtures/fake-credentials.txt
var fixture []byte

// Fixture returns a sample of fake credentials a working scanner
// configuration must flag.
func Fixture() []byte {
	return append([]byte(nil), fixture...)
}

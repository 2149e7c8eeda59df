package artifact

import (
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnlinkedLibrary is returned when code still contains library placeholders.
var ErrUnlinkedLibrary = errors.New("unlinked library reference")

// placeholderLen is the width of a library placeholder: one address in hex.
const placeholderLen = 2 * common.AddressLength

// Hex code never contains '_', so any 40 character run framed by "__" is a
// library placeholder.
var placeholderPattern = regexp.MustCompile(`__.{36}__`)

// Placeholders returns the placeholder strings the compiler may have emitted for
// a library: the legacy name-based form and the solc >= 0.5 hashed form.
func Placeholders(libName, sourcePath string) []string {
	legacy := "__" + libName
	if len(legacy) > placeholderLen-2 {
		legacy = legacy[:placeholderLen-2]
	}
	legacy += strings.Repeat("_", placeholderLen-len(legacy))

	out := []string{legacy, hashedPlaceholder(libName)}
	if sourcePath != "" {
		out = append(out, hashedPlaceholder(sourcePath+":"+libName))
	}
	return out
}

func hashedPlaceholder(fqName string) string {
	h := hex.EncodeToString(crypto.Keccak256([]byte(fqName)))
	return "__$" + h[:34] + "$__"
}

// Link substitutes addr for every placeholder of the named library in code.
// It returns the linked code and the number of substitutions made.
func Link(code, libName, sourcePath string, addr common.Address) (string, int) {
	target := strings.ToLower(strings.TrimPrefix(addr.Hex(), "0x"))
	n := 0
	for _, p := range Placeholders(libName, sourcePath) {
		c := strings.Count(code, p)
		if c == 0 {
			continue
		}
		n += c
		code = strings.ReplaceAll(code, p, target)
	}
	return code, n
}

// Unlinked lists the distinct placeholders left in code.
func Unlinked(code string) []string {
	matches := placeholderPattern.FindAllString(code, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

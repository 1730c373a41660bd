package ocds

import (
	"encoding/json"
	"fmt"
)

// ReleasePackage is the envelope returned by the Find a Tender API.
type ReleasePackage struct {
	URI       string    `json:"uri,omitempty"`
	Version   string    `json:"version,omitempty"`
	Releases  []Release `json:"releases"`
	Links     *Links    `json:"links,omitempty"`
	Published string    `json:"publishedDate,omitempty"`
}

type Links struct {
	Next string `json:"next,omitempty"`
}

// DecodePackage parses a release-package body. The upstream feed sometimes
// emits numeric fields with leading zeros ("amount": 0045000), which is
// invalid JSON, so the raw bytes are repaired before unmarshalling.
func DecodePackage(body []byte) (*ReleasePackage, error) {
	var pkg ReleasePackage
	if err := json.Unmarshal(RepairNumericLiterals(body), &pkg); err != nil {
		return nil, fmt.Errorf("decoding release package: %w", err)
	}
	return &pkg, nil
}

// RepairNumericLiterals strips leading zeros from number tokens outside
// string literals, preserving a bare "0" and fractions like "0.5". The scan
// is byte-oriented: JSON structure characters and string escapes are all
// single-byte significant, so multi-byte runes pass through untouched.
func RepairNumericLiterals(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		c := raw[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '0' && numberStartsAt(raw, i):
			j := i
			for j < len(raw) && raw[j] == '0' {
				j++
			}
			if j < len(raw) && raw[j] >= '1' && raw[j] <= '9' {
				// 0045000 -> 45000: drop all leading zeros.
				i = j - 1
			} else {
				// 0, 0.5, 000 -> keep exactly one zero.
				out = append(out, '0')
				i = j - 1
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

// numberStartsAt reports whether raw[i] begins a number token, i.e. the
// previous non-space byte is a structural character or a sign.
func numberStartsAt(raw []byte, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch raw[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ':', ',', '[', '-', '+':
			return true
		default:
			return false
		}
	}
	return true
}

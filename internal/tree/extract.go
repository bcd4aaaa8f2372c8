package tree

import "bytes"

// anchor recognised in generated artifacts: the compiler always emits the
// operation literal as `const node: SomeType = { ... }`.
var anchor = []byte("const node")

// ExtractLiteral locates the default-exported literal inside raw file bytes.
// Everything before the opening brace is the prelude and everything after the
// matching close is the postlude, both preserved byte-exact. ok is false when
// the file carries no recognisable literal (the caller skips such files).
func ExtractLiteral(src []byte) (prelude, literal, postlude []byte, ok bool) {
	at := bytes.Index(src, anchor)
	if at < 0 {
		return nil, nil, nil, false
	}

	// The value must begin with `{`. A `;` first means the declaration was
	// already rewritten to a bare reference (or is something else entirely).
	open := -1
	for i := at + len(anchor); i < len(src); i++ {
		if src[i] == '{' {
			open = i
			break
		}
		if src[i] == ';' {
			return nil, nil, nil, false
		}
	}
	if open < 0 {
		return nil, nil, nil, false
	}

	end := matchBrace(src, open)
	if end < 0 {
		return nil, nil, nil, false
	}
	return src[:open], src[open : end+1], src[end+1:], true
}

// matchBrace scans from the opening brace at open to its matching close,
// tracking {} and [] depth and skipping string literals with backslash
// escapes. Returns -1 when unbalanced.
func matchBrace(src []byte, open int) int {
	depth := 0
	inString := false
	escape := false
	for i := open; i < len(src); i++ {
		c := src[i]
		if escape {
			escape = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

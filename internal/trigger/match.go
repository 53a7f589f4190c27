package trigger

// Match reports whether a workflow-style pattern matches a ref name. `*`
// matches any run of characters within one path segment, `**` matches across
// segments, `?` matches a single character. Matching is exact otherwise, no
// regexp semantics.
//
// path.Match cannot express `**`, which the stock `release/**` rule needs,
// hence this small matcher.
func Match(pattern, name string) bool {
	return matchRunes([]rune(pattern), []rune(name))
}

func matchRunes(p, n []rune) bool {
	for len(p) > 0 {
		switch {
		case len(p) >= 2 && p[0] == '*' && p[1] == '*':
			rest := p[2:]
			for i := 0; ; i++ {
				if matchRunes(rest, n[i:]) {
					return true
				}
				if i >= len(n) {
					return false
				}
			}
		case p[0] == '*':
			rest := p[1:]
			for i := 0; ; i++ {
				if matchRunes(rest, n[i:]) {
					return true
				}
				if i >= len(n) || n[i] == '/' {
					return false
				}
			}
		case p[0] == '?':
			if len(n) == 0 || n[0] == '/' {
				return false
			}
			p, n = p[1:], n[1:]
		default:
			if len(n) == 0 || n[0] != p[0] {
				return false
			}
			p, n = p[1:], n[1:]
		}
	}
	return len(n) == 0
}

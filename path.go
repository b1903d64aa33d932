package nodekit

import "strings"

// Separator is the path separator used for every backend, regardless of the
// host operating system.
const Separator = "/"

const stripChars = Separator + " "

// Strip removes leading and trailing separators and spaces from path.
// Internal separators are left untouched.
func Strip(path string) string {
	return strings.Trim(path, stripChars)
}

// Combine strips every part, drops the parts that become empty and joins the
// remaining ones with a single separator. Combine with no surviving parts
// returns "", which denotes the root.
func Combine(parts ...string) string {
	var b strings.Builder
	for _, part := range parts {
		stripped := Strip(part)
		if stripped == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(stripped)
	}
	return b.String()
}

// Split splits the stripped path at its last separator. When the path has no
// separator (or only a leading one) hasParent is false and name is the whole
// stripped path.
func Split(path string) (parent string, name string, hasParent bool) {
	p := Strip(path)
	i := strings.LastIndex(p, Separator)
	if i > 0 {
		return p[:i], p[i+1:], true
	}
	return "", p, false
}

// ParentPath returns the parent of the combined parts, or "" with ok false
// when the path has no parent segment.
func ParentPath(parts ...string) (string, bool) {
	parent, _, ok := Split(Combine(parts...))
	return parent, ok
}

// Extension returns the text after the last "." of the combined parts,
// without the dot. ok is false when the path contains no dot.
func Extension(parts ...string) (ext string, ok bool) {
	combined := Combine(parts...)
	i := strings.LastIndex(combined, ".")
	if i < 0 {
		return "", false
	}
	return combined[i+1:], true
}

// AppendSeparator makes sure path ends with exactly one separator.
func AppendSeparator(path string) string {
	return strings.TrimRight(path, Separator) + Separator
}

// suffixAfter returns the part of s after the first occurrence of sep, or ""
// when sep does not occur. An empty sep yields s.
func suffixAfter(s, sep string) string {
	_, after, found := strings.Cut(s, sep)
	if !found {
		return ""
	}
	return after
}

// isBlank reports whether s holds only whitespace.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

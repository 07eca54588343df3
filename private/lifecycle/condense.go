// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package lifecycle

import (
	"bufio"
	"bytes"
)

// condenseStack rewrites a runtime.Stack dump into one line per frame,
// keeping only goroutine ids, function names and line numbers. A full
// dump of a busy process does not fit into a log message.
func condenseStack(buf []byte) (out []byte) {
	// fall back to the raw stack when the parsing assumptions below
	// break; too big beats nothing.
	defer func() {
		if recover() != nil {
			out = buf
		}
	}()

	scanner := bufio.NewScanner(bytes.NewReader(buf))
	skipNext := false
	for scanner.Scan() {
		if skipNext {
			skipNext = false
			continue
		}
		line := scanner.Bytes()

		switch {
		case len(line) == 0:
			out = append(out, '\n')

		case bytes.HasPrefix(line, []byte("goroutine ")):
			// "goroutine 42 [running]:" -> "goroutine 42"
			rest := line[len("goroutine "):]
			id := rest[:bytes.IndexByte(rest, ' ')]
			out = append(out, "goroutine "...)
			out = append(out, id...)
			out = append(out, '\n')

		case line[0] == '\t':
			// "\t/home/x/file.go:123 +0x4f" -> "123"
			loc := line[bytes.LastIndexByte(line, ':')+1:]
			if n := bytes.IndexByte(loc, ' '); n >= 0 {
				loc = loc[:n]
			}
			out = append(out, loc...)
			out = append(out, '\n')

		case bytes.HasPrefix(line, []byte("created by")):
			skipNext = true

		default:
			// "pkg.(*Type).method(0x1, 0x2)" -> "\tpkg.(*Type).method:"
			name := line[:bytes.LastIndexByte(line, '(')]
			out = append(out, '\t')
			out = append(out, name...)
			out = append(out, ':')
		}
	}
	if scanner.Err() != nil {
		return buf
	}
	return out
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// componentTypes are the functional component type names, unqualified.
var componentTypes = map[string]bool{
	"FC":                    true,
	"FunctionComponent":     true,
	"VFC":                   true,
	"VoidFunctionComponent": true,
}

// IsPascalCase reports whether name starts with an upper-case letter and
// contains no underscore. SCREAMING_CASE constants do not qualify.
func IsPascalCase(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return false
	}
	return !strings.ContainsRune(name, '_')
}

// IsComponentType reports whether a type annotation names a functional
// component, e.g. "FC", "React.FC<Props>" or "React.FunctionComponent".
func IsComponentType(annotation string) bool {
	base, _ := splitGeneric(annotation)
	base = strings.TrimPrefix(base, "React.")
	return componentTypes[base]
}

// componentPropsType returns the first generic argument of a component
// type annotation, e.g. "ButtonProps" for "React.FC<ButtonProps>".
func componentPropsType(annotation string) string {
	_, args := splitGeneric(annotation)
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// typeName reduces a parameter type annotation to the name of a type
// declared in the same file, unwrapping Readonly<T> and PropsWithChildren<T>.
func typeName(annotation string) string {
	base, args := splitGeneric(annotation)
	switch strings.TrimPrefix(base, "React.") {
	case "Readonly", "PropsWithChildren":
		if len(args) > 0 {
			return typeName(args[0])
		}
	}
	return base
}

// splitGeneric splits "A.B<C, D<E>>" into "A.B" and ["C", "D<E>"].
// Whitespace is removed first.
func splitGeneric(annotation string) (string, []string) {
	compact := strings.Join(strings.Fields(annotation), "")
	open := strings.IndexByte(compact, '<')
	if open < 0 || !strings.HasSuffix(compact, ">") {
		return compact, nil
	}

	base := compact[:open]
	inner := compact[open+1 : len(compact)-1]

	var args []string
	depth, start := 0, 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<', '{', '(', '[':
			depth++
		case '>', '}', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, inner[start:i])
				start = i + 1
			}
		}
	}
	if start < len(inner) {
		args = append(args, inner[start:])
	}
	return base, args
}

// isUsageTag reports whether a JSX tag name refers to a component.
// Intrinsic (lower-case), namespaced and fragment tags do not.
func isUsageTag(name string) bool {
	if name == "" || strings.ContainsRune(name, ':') {
		return false
	}
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// lastSegment returns the part of a dotted name after the last dot.
func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

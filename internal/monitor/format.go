// File: internal/monitor/format.go
package monitor

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ArgKind is the formatting category of a console argument.
type ArgKind int

const (
	// ArgPrimitive values render as their plain string form.
	ArgPrimitive ArgKind = iota
	// ArgStructured values carry JSON and render indented.
	ArgStructured
	// ArgOpaque values cannot be serialized and render from their description.
	ArgOpaque
)

// Arg is one argument of a console call, already classified.
type Arg struct {
	Kind ArgKind
	// Text is the rendering of a primitive.
	Text string
	// Value is the JSON of a structured argument.
	Value []byte
	// Description and TypeName are the fallbacks for anything that fails to serialize.
	Description string
	TypeName    string
}

// Primitive builds a primitive argument.
func Primitive(text string) Arg {
	return Arg{Kind: ArgPrimitive, Text: text}
}

// Structured builds a structured argument from raw JSON.
func Structured(value []byte, description, typeName string) Arg {
	return Arg{Kind: ArgStructured, Value: value, Description: description, TypeName: typeName}
}

// Opaque builds an argument that only has a description.
func Opaque(description, typeName string) Arg {
	return Arg{Kind: ArgOpaque, Description: description, TypeName: typeName}
}

// FormatArg renders a single argument.
func FormatArg(a Arg) string {
	switch a.Kind {
	case ArgPrimitive:
		return a.Text
	case ArgStructured:
		var buf bytes.Buffer
		if err := json.Indent(&buf, a.Value, "", "  "); err == nil {
			return buf.String()
		}
	}
	return fallback(a)
}

// fallback is the best-effort rendering of a value that did not serialize.
func fallback(a Arg) string {
	if a.Description != "" {
		return a.Description
	}
	if a.TypeName != "" {
		return "[" + a.TypeName + "]"
	}
	return "[object]"
}

// FormatArgs renders every argument and joins them with spaces.
func FormatArgs(args []Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = FormatArg(a)
	}
	return strings.Join(parts, " ")
}

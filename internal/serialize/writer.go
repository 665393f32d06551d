// Package serialize writes exported meshes and skeletons as Ogre XML
// documents.
//
// The writers emit text directly rather than marshalling structs: element
// order, attribute order and number formatting are fixed by the documents
// the converter expects, and every line is tab indented.
package serialize

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/Faultbox/meshexport/pkg/math"
)

// xmlWriter writes indented lines and keeps the first error.
type xmlWriter struct {
	w     *bufio.Writer
	depth int
	err   error
}

func newWriter(w io.Writer) *xmlWriter {
	return &xmlWriter{w: bufio.NewWriter(w)}
}

func (x *xmlWriter) line(format string, args ...any) {
	if x.err != nil {
		return
	}
	if _, err := x.w.WriteString(strings.Repeat("\t", x.depth)); err != nil {
		x.err = err
		return
	}
	if _, err := fmt.Fprintf(x.w, format+"\n", args...); err != nil {
		x.err = err
	}
}

// open writes a start tag line and indents what follows.
func (x *xmlWriter) open(format string, args ...any) {
	x.line(format, args...)
	x.depth++
}

// close dedents and writes an end tag.
func (x *xmlWriter) close(tag string) {
	x.depth--
	x.line("</%s>", tag)
}

func (x *xmlWriter) vec(tag string, v math.Vec3) {
	x.line("<%s x=\"%.6f\" y=\"%.6f\" z=\"%.6f\"/>", tag, v.X, v.Y, v.Z)
}

func (x *xmlWriter) flush() error {
	if x.err != nil {
		return x.err
	}
	return x.w.Flush()
}

// esc escapes a name for use inside an attribute value.
func esc(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

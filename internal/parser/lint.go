package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/util"
)

type FindingKind string

const (
	FindingDoubleSpace   FindingKind = "double-space"
	FindingUnaddressable FindingKind = "unaddressable"
	FindingOutOfRange    FindingKind = "out-of-range"
	FindingDuplicate     FindingKind = "duplicate-address"
)

// Finding is one suspicious line in a source file.
type Finding struct {
	File    string      `json:"file"`
	Line    int         `json:"line"`
	Kind    FindingKind `json:"kind"`
	Message string      `json:"message"`
	Excerpt string      `json:"excerpt"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d: %s: %s [%s]", f.File, f.Line, f.Kind, f.Message, f.Excerpt)
}

// Lint reports lines that parse but probably should not look the way they do.
func Lint(r io.Reader, name string) ([]Finding, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []Finding
	firstSeen := map[address.Ref]int{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, bom)
		}
		token, _, ok := splitLine(line)
		if !ok {
			continue
		}
		add := func(kind FindingKind, msg, excerpt string) {
			out = append(out, Finding{
				File:    name,
				Line:    lineNo,
				Kind:    kind,
				Message: msg,
				Excerpt: excerpt,
			})
		}
		snippet := util.DisplaySnippet(line, 60)

		if strings.Contains(line, "  ") {
			add(FindingDoubleSpace, "line contains consecutive spaces", util.ExactSnippet(line, 60))
		}
		ref, resolved := address.ParseAddress(token)
		switch {
		case !resolved:
			add(FindingUnaddressable, fmt.Sprintf("address %q is not chapter.verse", token), snippet)
		case !ref.InDomain():
			add(FindingOutOfRange, fmt.Sprintf("address %s exceeds three digits", ref), snippet)
		default:
			if first, dup := firstSeen[ref]; dup {
				add(FindingDuplicate, fmt.Sprintf("address %s already used on line %d", ref, first), snippet)
			} else {
				firstSeen[ref] = lineNo
			}
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("lint %s: %w", name, err)
	}
	return out, nil
}

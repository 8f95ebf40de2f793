package address

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/cdnilsen/eliot-web/internal/util"
)

// Edition is the leading digit of a SpecificVerseId. Digit 1 is reserved for
// generic ids and is never an edition.
type Edition int

const (
	EditionFirst   Edition = 2
	EditionSecond  Edition = 3
	EditionKJV     Edition = 4
	EditionMayhew  Edition = 5
	EditionZeroth  Edition = 7
	EditionGrebrew Edition = 8
)

const genericDigit = 1

type editionInfo struct {
	tag          string
	column       string
	translatable bool
}

var editionInfos = map[Edition]editionInfo{
	EditionFirst:   {tag: "First Edition", column: "first_edition", translatable: true},
	EditionSecond:  {tag: "Second Edition", column: "second_edition", translatable: true},
	EditionMayhew:  {tag: "Mayhew", column: "mayhew", translatable: true},
	EditionZeroth:  {tag: "Zeroth Edition", column: "zeroth_edition", translatable: true},
	EditionKJV:     {tag: "KJV", column: "kjv", translatable: false},
	EditionGrebrew: {tag: "Grebrew", column: "grebrew", translatable: false},
}

// columnOrder is the column layout of the verse table.
var columnOrder = [...]Edition{
	EditionFirst,
	EditionSecond,
	EditionMayhew,
	EditionZeroth,
	EditionKJV,
	EditionGrebrew,
}

var editionsByTag = func() map[string]Edition {
	m := make(map[string]Edition, len(editionInfos))
	for e, info := range editionInfos {
		m[strings.ToLower(info.tag)] = e
	}
	return m
}()

// Columns returns the editions in verse-table column order. The slice is a copy.
func Columns() []Edition {
	out := make([]Edition, len(columnOrder))
	copy(out, columnOrder[:])
	return out
}

// ColumnCount is the number of edition text columns on a verse row.
func ColumnCount() int { return len(columnOrder) }

// ColumnIndex returns the position of e in the verse-table layout, or -1.
func ColumnIndex(e Edition) int {
	for i, c := range columnOrder {
		if c == e {
			return i
		}
	}
	return -1
}

// Translatable lists the word-indexed editions in column order.
func Translatable() []Edition {
	var out []Edition
	for _, e := range columnOrder {
		if e.Translatable() {
			out = append(out, e)
		}
	}
	return out
}

func (e Edition) Valid() bool {
	_, ok := editionInfos[e]
	return ok
}

// Tag is the edition name as it appears in source file names.
func (e Edition) Tag() string {
	if info, ok := editionInfos[e]; ok {
		return info.tag
	}
	return fmt.Sprintf("edition(%d)", int(e))
}

func (e Edition) Column() string { return editionInfos[e].column }

func (e Edition) Translatable() bool { return editionInfos[e].translatable }

func (e Edition) String() string { return e.Tag() }

// ParseEdition resolves a file-name tag such as "First Edition", ignoring case.
func ParseEdition(tag string) (Edition, error) {
	if e, ok := editionsByTag[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return e, nil
	}
	return 0, fmt.Errorf("%w: %q", util.ErrUnknownEdition, tag)
}

// EditionSet is a bitmask of editions, bit n set for edition digit n.
type EditionSet uint16

func (s EditionSet) Add(e Edition) EditionSet { return s | 1<<uint(e) }

func (s EditionSet) Has(e Edition) bool { return s&(1<<uint(e)) != 0 }

func (s EditionSet) Len() int { return bits.OnesCount16(uint16(s)) }

// Editions lists the members in column order.
func (s EditionSet) Editions() []Edition {
	var out []Edition
	for _, e := range columnOrder {
		if s.Has(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s EditionSet) String() string {
	tags := make([]string, 0, s.Len())
	for _, e := range s.Editions() {
		tags = append(tags, e.Tag())
	}
	return strings.Join(tags, ",")
}

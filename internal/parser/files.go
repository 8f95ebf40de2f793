package parser

import (
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/util"
)

const sourcePattern = "**/*.txt"

// Source is one edition file of a book.
type Source struct {
	Path    string
	Book    address.Book
	Edition address.Edition
}

// ParseFileName reads "<Book>.<Edition>.txt".
func ParseFileName(name string) (address.Book, address.Edition, error) {
	base := path.Base(name)
	stem, ok := strings.CutSuffix(base, ".txt")
	if !ok {
		return address.Book{}, 0, fmt.Errorf("source file %q: want <Book>.<Edition>.txt", name)
	}
	bookName, tag, ok := strings.Cut(stem, ".")
	if !ok {
		return address.Book{}, 0, fmt.Errorf("source file %q: want <Book>.<Edition>.txt", name)
	}
	book, err := address.LookupBook(bookName)
	if err != nil {
		return address.Book{}, 0, fmt.Errorf("source file %q: %w", name, err)
	}
	edition, err := address.ParseEdition(tag)
	if err != nil {
		return address.Book{}, 0, fmt.Errorf("source file %q: %w", name, err)
	}
	return book, edition, nil
}

// ParseFile reads one source file from fsys, taking book and edition from its
// name.
func (p *Parser) ParseFile(fsys fs.FS, name string) ([]models.VerseRecord, error) {
	book, edition, err := ParseFileName(name)
	if err != nil {
		return nil, err
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	return p.Parse(f, book, edition)
}

// scan lists every recognised source file under fsys in path order. Files
// whose names do not resolve are logged and skipped.
func (p *Parser) scan(fsys fs.FS) ([]Source, error) {
	matches, err := doublestar.Glob(fsys, sourcePattern)
	if err != nil {
		return nil, fmt.Errorf("glob sources: %w", err)
	}
	slices.Sort(matches)
	var out []Source
	for _, m := range matches {
		book, edition, err := ParseFileName(m)
		if err != nil {
			p.logger.Warn("skipping source file", "path", m, "error", err)
			continue
		}
		out = append(out, Source{Path: m, Book: book, Edition: edition})
	}
	return out, nil
}

// Discover finds the edition files of book, one per edition, in column order.
func (p *Parser) Discover(fsys fs.FS, book address.Book) ([]Source, error) {
	all, err := p.scan(fsys)
	if err != nil {
		return nil, err
	}
	byEdition := map[address.Edition]Source{}
	for _, s := range all {
		if s.Book.Code != book.Code {
			continue
		}
		if prev, dup := byEdition[s.Edition]; dup {
			p.logger.Warn("duplicate edition file ignored",
				"book", book.Name,
				"edition", s.Edition.Tag(),
				"kept", prev.Path,
				"ignored", s.Path,
			)
			continue
		}
		byEdition[s.Edition] = s
	}
	if len(byEdition) == 0 {
		return nil, fmt.Errorf("%w: %s", util.ErrNoSourceFiles, book.Name)
	}
	out := make([]Source, 0, len(byEdition))
	for _, e := range address.Columns() {
		if s, ok := byEdition[e]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Books lists every book with at least one source file, in canonical order.
func (p *Parser) Books(fsys fs.FS) ([]address.Book, error) {
	all, err := p.scan(fsys)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, s := range all {
		seen[s.Book.Code] = true
	}
	var out []address.Book
	for _, b := range address.Books() {
		if seen[b.Code] {
			out = append(out, b)
		}
	}
	return out, nil
}

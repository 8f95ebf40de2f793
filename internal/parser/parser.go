// Package parser reads line-oriented edition files into verse records.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/logging"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/normalize"
	"github.com/cdnilsen/eliot-web/internal/util"
)

const (
	bom         = "\ufeff"
	maxLineSize = 1 << 20
)

// Parser turns edition files into verse records. Line-level problems are
// logged and recovered; only read errors are returned.
type Parser struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Parser{logger: logger}
}

// Parse reads one edition file of book. Every non-blank line yields a record;
// unaddressable lines get the 999.999 sentinel.
func Parse(r io.Reader, book address.Book, edition address.Edition) ([]models.VerseRecord, error) {
	return New(nil).Parse(r, book, edition)
}

func (p *Parser) Parse(r io.Reader, book address.Book, edition address.Edition) ([]models.VerseRecord, error) {
	if !edition.Valid() {
		return nil, fmt.Errorf("%w: digit %d", util.ErrUnknownEdition, int(edition))
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []models.VerseRecord
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, bom)
		}
		token, text, ok := splitLine(line)
		if !ok {
			continue
		}

		ref, resolved := address.ParseAddress(token)
		if resolved && !ref.InDomain() {
			p.logger.Warn("address out of range",
				"book", book.Name,
				"edition", edition.Tag(),
				"line", lineNo,
				"address", token,
				"error", util.ErrInvalidAddress,
			)
			ref, resolved = address.Unresolved, false
		}

		rec, err := newRecord(book, edition, ref, text)
		if err != nil {
			return nil, fmt.Errorf("parse %s %s line %d: %w", book.Name, edition.Tag(), lineNo, err)
		}
		rec.Resolved = resolved
		rec.Line = lineNo
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("read %s %s line %d: %w", book.Name, edition.Tag(), lineNo+1, err)
		}
		return nil, fmt.Errorf("read %s %s: %w", book.Name, edition.Tag(), err)
	}
	return out, nil
}

// splitLine separates the address token from the text. The text is whatever
// follows the first space or tab after the token, with trailing whitespace
// and control characters removed. ok is false for blank lines.
func splitLine(line string) (token, text string, ok bool) {
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	if line == "" {
		return "", "", false
	}
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, "", true
	}
	return line[:i], util.SanitizeText(line[i+1:]), true
}

func newRecord(book address.Book, edition address.Edition, ref address.Ref, text string) (models.VerseRecord, error) {
	specific, err := address.SpecificID(edition, book.Code, ref.Chapter, ref.Verse)
	if err != nil {
		return models.VerseRecord{}, err
	}
	generic, err := address.GenericID(book.Code, ref.Chapter, ref.Verse)
	if err != nil {
		return models.VerseRecord{}, err
	}
	return models.VerseRecord{
		SpecificID:   specific,
		GenericID:    generic,
		Book:         book.Name,
		Edition:      edition,
		Chapter:      ref.Chapter,
		Verse:        ref.Verse,
		RawText:      text,
		Translatable: edition.Translatable(),
	}, nil
}

// CountWords builds the headword multiset of a verse text. A vertical bar
// separates sub-lines and counts as a space.
func CountWords(text string) models.WordCounts {
	counts := models.WordCounts{}
	text = strings.ReplaceAll(text, "|", " ")
	for _, tok := range strings.Split(text, " ") {
		w := normalize.CleanWord(tok)
		if w == "" {
			continue
		}
		counts[w]++
	}
	return counts
}

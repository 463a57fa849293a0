// Package xer reads tagged-table export files produced by project scheduling
// tools.
//
// An export file is line oriented and tab delimited. The first token of a
// line says what the line is:
//
//	%T	TASK                        starts table TASK
//	%F	task_id	task_name           declares the fields of the open table
//	%R	1001	Excavate            adds a record to the open table
//
// Every other line (headers, end markers, blanks) is ignored. The parser is
// forgiving: it never fails on content, it only keeps what it can attribute
// to a table.
package xer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
)

// Markers are the line-leading tokens that give a line its meaning.
type Markers struct {
	Table  string
	Fields string
	Record string
}

// DefaultMarkers returns the markers used by Primavera-style exports.
func DefaultMarkers() Markers {
	return Markers{Table: "%T", Fields: "%F", Record: "%R"}
}

// Validate checks that all markers are set and distinct.
func (m Markers) Validate() error {
	if m.Table == "" || m.Fields == "" || m.Record == "" {
		return errors.New("markers must not be empty")
	}
	if m.Table == m.Fields || m.Table == m.Record || m.Fields == m.Record {
		return fmt.Errorf("markers must be distinct (table=%q fields=%q record=%q)", m.Table, m.Fields, m.Record)
	}
	return nil
}

// Parser turns export file content into a Document.
type Parser struct {
	markers  Markers
	encoding encoding.Encoding
}

// NewParser creates a parser for the given markers and source encoding.
// A nil encoding means the input is already UTF-8.
func NewParser(markers Markers, enc encoding.Encoding) *Parser {
	return &Parser{markers: markers, encoding: enc}
}

// ParseFile opens and parses the file at path.
func (p *Parser) ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse reads r to the end. The only errors returned are read errors.
func (p *Parser) Parse(r io.Reader) (*Document, error) {
	if p.encoding != nil {
		r = NewDecodingReader(r, p.encoding)
	}
	br := bufio.NewReaderSize(r, 64*1024)

	doc := newDocument()
	var current *Table
	lineNum := 0

	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lineNum++
			current = p.parseLine(doc, current, line, lineNum)
		}
		if err == io.EOF {
			return doc, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", lineNum+1, err)
		}
	}
}

// ParseString parses content that is already decoded.
func (p *Parser) ParseString(content string) *Document {
	doc := newDocument()
	var current *Table
	for i, line := range strings.Split(content, "\n") {
		current = p.parseLine(doc, current, line, i+1)
	}
	return doc
}

// parseLine applies one line and returns the table that is open afterwards.
func (p *Parser) parseLine(doc *Document, current *Table, line string, lineNum int) *Table {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return current
	}

	tokens := strings.Split(line, "\t")
	switch tokens[0] {
	case p.markers.Table:
		if len(tokens) < 2 || tokens[1] == "" {
			// A start marker with no name cannot own records.
			return nil
		}
		return doc.startTable(tokens[1])

	case p.markers.Fields:
		if current != nil {
			current.Fields = tokens[1:]
		}

	case p.markers.Record:
		if current != nil {
			current.Records = append(current.Records, Record{
				Line:   lineNum,
				Fields: current.Fields,
				Values: tokens[1:],
			})
		}
	}

	return current
}

// Package sourcemap reads, writes and concatenates version 3 source maps.
//
// Only what the pipeline needs is implemented: decoding and encoding of the
// mappings field, a line-level identity map for untransformed files, and
// concatenation of several mapped files into one.
package sourcemap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Map is a version 3 source map.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Segment is one decoded mapping with absolute positions. Source and Name
// are -1 when absent.
type Segment struct {
	GenCol  int
	Source  int
	SrcLine int
	SrcCol  int
	Name    int
}

// Parse decodes a JSON source map.
func Parse(b []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	return &m, nil
}

// Bytes encodes the map as JSON.
func (m *Map) Bytes() ([]byte, error) {
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return json.Marshal(m)
}

// Identity maps every line of content to the same line of source.
func Identity(source string, content []byte) *Map {
	lines := bytes.Count(content, []byte{'\n'}) + 1
	segs := make([][]Segment, lines)
	for i := range segs {
		segs[i] = []Segment{{GenCol: 0, Source: 0, SrcLine: i, SrcCol: 0, Name: -1}}
	}
	return &Map{
		Version:        3,
		Sources:        []string{source},
		SourcesContent: []string{string(content)},
		Mappings:       EncodeMappings(segs),
	}
}

// Part is one input of Concat. A part without a map is mapped line for
// line onto Source.
type Part struct {
	Source  string
	Content []byte
	Map     *Map
}

// Concat builds the map of the parts joined with a newline separator, in
// order. Sources and names shared between parts are merged.
func Concat(file string, parts []Part) (*Map, error) {
	out := &Map{Version: 3, File: file}
	sourceIdx := make(map[string]int)
	nameIdx := make(map[string]int)
	var lines [][]Segment

	addSource := func(name, content string) int {
		if i, ok := sourceIdx[name]; ok {
			return i
		}
		sourceIdx[name] = len(out.Sources)
		out.Sources = append(out.Sources, name)
		out.SourcesContent = append(out.SourcesContent, content)
		return sourceIdx[name]
	}
	addName := func(name string) int {
		if i, ok := nameIdx[name]; ok {
			return i
		}
		nameIdx[name] = len(out.Names)
		out.Names = append(out.Names, name)
		return nameIdx[name]
	}

	for _, p := range parts {
		m := p.Map
		if m == nil {
			m = Identity(p.Source, p.Content)
		}
		decoded, err := DecodeMappings(m.Mappings)
		if err != nil {
			return nil, fmt.Errorf("source map of %s: %w", p.Source, err)
		}
		partLines := bytes.Count(p.Content, []byte{'\n'}) + 1
		for i := 0; i < partLines; i++ {
			var line []Segment
			if i < len(decoded) {
				for _, s := range decoded[i] {
					if s.Source >= 0 && s.Source < len(m.Sources) {
						content := ""
						if s.Source < len(m.SourcesContent) {
							content = m.SourcesContent[s.Source]
						}
						s.Source = addSource(m.Sources[s.Source], content)
					} else {
						s.Source = -1
					}
					if s.Name >= 0 && s.Name < len(m.Names) {
						s.Name = addName(m.Names[s.Name])
					} else {
						s.Name = -1
					}
					line = append(line, s)
				}
			}
			lines = append(lines, line)
		}
	}

	out.Mappings = EncodeMappings(lines)
	return out, nil
}

// InlineComment returns a sourceMappingURL comment embedding m as a data
// URL, for handing a map to a tool that reads inline maps.
func InlineComment(m []byte, css bool) string {
	url := "data:application/json;base64," + base64.StdEncoding.EncodeToString(m)
	if css {
		return "\n/*# sourceMappingURL=" + url + " */\n"
	}
	return "\n//# sourceMappingURL=" + url + "\n"
}

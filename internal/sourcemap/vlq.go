package sourcemap

import (
	"fmt"
	"strings"
)

const vlqAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var vlqDecode = func() [256]int {
	var t [256]int
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(vlqAlphabet); i++ {
		t[vlqAlphabet[i]] = i
	}
	return t
}()

func encodeVLQ(sb *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u > 0 {
			digit |= 32
		}
		sb.WriteByte(vlqAlphabet[digit])
		if u == 0 {
			return
		}
	}
}

func decodeVLQ(s string, pos int) (int, int, error) {
	var result, shift int
	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("truncated VLQ value")
		}
		digit := vlqDecode[s[pos]]
		if digit < 0 {
			return 0, pos, fmt.Errorf("invalid VLQ character %q", s[pos])
		}
		pos++
		result += (digit & 31) << shift
		if digit&32 == 0 {
			break
		}
		shift += 5
	}
	if result&1 == 1 {
		return -(result >> 1), pos, nil
	}
	return result >> 1, pos, nil
}

// DecodeMappings decodes a mappings string into absolute segments per
// generated line.
func DecodeMappings(s string) ([][]Segment, error) {
	var (
		lines                          [][]Segment
		line                           []Segment
		source, srcLine, srcCol, name int
	)
	for _, group := range strings.Split(s, ";") {
		line = nil
		genCol := 0
		for _, raw := range strings.Split(group, ",") {
			if raw == "" {
				continue
			}
			var fields []int
			for pos := 0; pos < len(raw); {
				v, next, err := decodeVLQ(raw, pos)
				if err != nil {
					return nil, err
				}
				fields = append(fields, v)
				pos = next
			}
			seg := Segment{Source: -1, Name: -1}
			switch len(fields) {
			case 1, 4, 5:
			default:
				return nil, fmt.Errorf("segment %q has %d fields", raw, len(fields))
			}
			genCol += fields[0]
			seg.GenCol = genCol
			if len(fields) >= 4 {
				source += fields[1]
				srcLine += fields[2]
				srcCol += fields[3]
				seg.Source, seg.SrcLine, seg.SrcCol = source, srcLine, srcCol
			}
			if len(fields) == 5 {
				name += fields[4]
				seg.Name = name
			}
			line = append(line, seg)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// EncodeMappings is the inverse of DecodeMappings.
func EncodeMappings(lines [][]Segment) string {
	var (
		sb                             strings.Builder
		source, srcLine, srcCol, name int
	)
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte(';')
		}
		genCol := 0
		for j, seg := range line {
			if j > 0 {
				sb.WriteByte(',')
			}
			encodeVLQ(&sb, seg.GenCol-genCol)
			genCol = seg.GenCol
			if seg.Source < 0 {
				continue
			}
			encodeVLQ(&sb, seg.Source-source)
			encodeVLQ(&sb, seg.SrcLine-srcLine)
			encodeVLQ(&sb, seg.SrcCol-srcCol)
			source, srcLine, srcCol = seg.Source, seg.SrcLine, seg.SrcCol
			if seg.Name >= 0 {
				encodeVLQ(&sb, seg.Name-name)
				name = seg.Name
			}
		}
	}
	return sb.String()
}

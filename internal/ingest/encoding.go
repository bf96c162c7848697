// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package ingest

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names reported in validation metadata
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
	EncodingLatin1  = "iso-8859-1"
)

// decodePayload detects the payload encoding and returns its UTF-8
// decoding plus the detected encoding name. Detection order: UTF-16 BOM,
// UTF-8 BOM, valid UTF-8, ISO-8859-1 fallback.
func decodePayload(data []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, EncodingUTF16LE, err
		}
		return decoded, EncodingUTF16LE, nil

	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, EncodingUTF16BE, err
		}
		return decoded, EncodingUTF16BE, nil

	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return data[3:], EncodingUTF8, nil

	case utf8.Valid(data):
		return data, EncodingUTF8, nil

	default:
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, EncodingLatin1, err
		}
		return decoded, EncodingLatin1, nil
	}
}

// detectDelimiter scores the header line against the accepted delimiters
// and returns the one producing the most columns. Comma wins ties by
// order of preference.
func detectDelimiter(headerLine string) rune {
	delimiters := []rune{',', ';', '\t', '|'}

	best := ','
	bestCount := 0
	for _, d := range delimiters {
		count := 0
		inQuotes := false
		for _, r := range headerLine {
			switch {
			case r == '"':
				inQuotes = !inQuotes
			case r == d && !inQuotes:
				count++
			}
		}
		if count > bestCount {
			best = d
			bestCount = count
		}
	}
	return best
}

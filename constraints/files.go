// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package constraints

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMediaType is used for files with no known media type
const DefaultMediaType = "application/octet-stream"

var (
	fileSizeRegex = regexp.MustCompile(`(?i)^(\d*\.?\d+)(?:([KMGT])(i?B)?|(B)?)$`)
	dataURLRegex  = regexp.MustCompile(`^data:([a-z]+/[a-z0-9\-+.]+)?(?:;name=([^;]+))?(;base64)?,(.+)$`)
	sizePowers    = map[string]float64{"K": 1, "M": 2, "G": 3, "T": 4}
)

// FileObject describes a file attached to a form field
type FileObject struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	// Data is the file reference as supplied, a data URL or a location
	Data string `json:"data"`
	// Content is the decoded body when known
	Content []byte `json:"-"`
}

// Type is the media type of the file
func (f *FileObject) Type() string { return f.MediaType }

// Equal compares two files by their metadata and data reference
func (f *FileObject) Equal(o *FileObject) bool {
	if f == nil || o == nil {
		return f == o
	}

	return f.Data == o.Data && f.MediaType == o.MediaType && f.Name == o.Name && f.Size == o.Size
}

// IsDataURL reports if s looks like a data URL
func IsDataURL(s string) bool {
	return dataURLRegex.MatchString(s)
}

// ParseDataURL decodes a data URL with an optional ;name= parameter
func ParseDataURL(s string) (*FileObject, bool) {
	m := dataURLRegex.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}

	f := &FileObject{
		Name:      "unknown",
		MediaType: m[1],
		Data:      s,
	}

	if m[2] != "" {
		name, err := url.QueryUnescape(m[2])
		if err != nil {
			name = m[2]
		}
		f.Name = name
	}

	if m[3] != "" {
		b, err := base64.StdEncoding.DecodeString(m[4])
		if err != nil {
			return nil, false
		}
		f.Content = b
	} else {
		f.Content = []byte(m[4])
	}
	f.Size = int64(len(f.Content))

	return f, true
}

// ExtractFileInfo converts the supported file representations into a FileObject.
// It accepts FileObjects, data URLs, JSON encoded file descriptions, maps with
// name, type or mediaType, size and data keys, and plain locations. It returns nil
// when no file can be made of v.
func ExtractFileInfo(v any) *FileObject {
	switch f := v.(type) {
	case nil:
		return nil

	case *FileObject:
		return f

	case FileObject:
		return &f

	case string:
		if fo, ok := ParseDataURL(f); ok {
			return fo
		}

		var desc map[string]any
		if json.Unmarshal([]byte(f), &desc) == nil {
			return fileFromMap(desc)
		}

		if f == "" {
			return nil
		}

		return &FileObject{Name: path.Base(f), MediaType: DefaultMediaType, Data: f}

	case map[string]any:
		return fileFromMap(f)
	}

	return nil
}

func fileFromMap(m map[string]any) *FileObject {
	data, _ := m["data"].(string)
	if data == "" {
		return nil
	}

	f := &FileObject{Name: "unknown", MediaType: DefaultMediaType, Data: data}

	if n, ok := m["name"].(string); ok && n != "" {
		f.Name = n
	}

	switch {
	case m["type"] != nil && m["type"] != "":
		f.MediaType = ToString(m["type"])
	case m["mediaType"] != nil && m["mediaType"] != "":
		f.MediaType = ToString(m["mediaType"])
	}

	if s, ok := ToNumber(m["size"]); ok {
		f.Size = int64(s)
	}

	if parsed, ok := ParseDataURL(data); ok {
		f.Content = parsed.Content
		f.Size = parsed.Size
	}

	return f
}

// FileSizeInBytes parses human sizes like 2MB, 1.5GB or 512K, bare numbers are KB.
// Unparsable sizes are 0.
func FileSizeInBytes(s string) int64 {
	m := fileSizeRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}

	size, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}

	power := 1.0
	switch {
	case m[2] != "":
		power = sizePowers[strings.ToUpper(m[2])]
	case m[4] != "":
		power = 0
	}

	return int64(math.Round(size * math.Pow(1024, power)))
}

// MatchMediaType checks a media type against accept patterns like image/*, .pdf or text/plain,
// an empty media type always matches
func MatchMediaType(mediaType string, accepts []string) bool {
	if mediaType == "" {
		return true
	}

	for _, accept := range accepts {
		a := strings.TrimSpace(accept)
		prefix, _, _ := strings.Cut(a, "/")
		_, suffix, hasDot := strings.Cut(a, ".")

		switch {
		case strings.Contains(a, "*") && strings.HasPrefix(mediaType, prefix):
			return true
		case hasDot && strings.HasSuffix(mediaType, suffix):
			return true
		case a == mediaType:
			return true
		}
	}

	return false
}

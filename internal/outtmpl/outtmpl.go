// Package outtmpl implements the output filename template (spec.md
// §6): printf-style %(key)s substitution, unsafe-character scrubbing,
// and on-disk uniqueness disambiguation.
package outtmpl

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Fields are the recognized template tokens.
type Fields struct {
	ChannelID   string
	ChannelName string
	Title       string
	Ext         string
	Now         time.Time
}

var tokenPattern = regexp.MustCompile(`%\(([a-z_]+)\)s`)

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// sanitize replaces every unsafe filename character with "_".
func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

// Format substitutes Fields into tmpl. Every substituted value is
// sanitized; the literal template text (directory separators the user
// wrote, for example) is left untouched.
func Format(tmpl string, f Fields) string {
	values := map[string]string{
		"channel_id":   sanitize(f.ChannelID),
		"channel_name": sanitize(f.ChannelName),
		"title":        sanitize(f.Title),
		"ext":          sanitize(f.Ext),
		"date":         f.Now.Format("2006-01-02"),
		"time":         f.Now.Format("150405"),
	}
	out := tokenPattern.ReplaceAllStringFunc(tmpl, func(tok string) string {
		key := tokenPattern.FindStringSubmatch(tok)[1]
		if v, ok := values[key]; ok {
			return v
		}
		return tok
	})

	base := filepath.Base(out)
	if strings.HasPrefix(base, "-") {
		out = filepath.Join(filepath.Dir(out), "_"+base)
	}
	return out
}

// Prepare formats tmpl, creates any missing parent directories, and
// disambiguates against existing files by appending ".N" before the
// extension until the path is free (I7).
func Prepare(tmpl string, f Fields) (string, error) {
	path := Format(tmpl, f)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	candidate := path
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s.%d%s", stem, n, ext)
	}
}

// Package locator maps files under the JP2 root to the addresses clients use
// to fetch them: a plain HTTP URL and a JPIP stream URL.
package locator

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

type Locator struct {
	root    string
	httpURL string
	jpipURL string
}

func New(root, httpURL, jpipURL string) *Locator {
	return &Locator{
		root:    filepath.Clean(root),
		httpURL: strings.TrimRight(httpURL, "/"),
		jpipURL: strings.TrimRight(jpipURL, "/"),
	}
}

// Abs joins a root-relative path onto the JP2 root.
func (l *Locator) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(l.root, rel)
}

func (l *Locator) URL(p string) (string, error) {
	rel, err := l.rel(p)
	if err != nil {
		return "", err
	}
	return l.httpURL + "/" + rel, nil
}

func (l *Locator) JPIP(p string) (string, error) {
	rel, err := l.rel(p)
	if err != nil {
		return "", err
	}
	return l.jpipURL + "/" + rel, nil
}

func (l *Locator) rel(p string) (string, error) {
	rel, err := filepath.Rel(l.root, l.Abs(p))
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", p, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("locate %s: outside %s", p, l.root)
	}
	return path.Clean(filepath.ToSlash(rel)), nil
}

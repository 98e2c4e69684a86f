// Package cookiejar loads a Netscape-format cookie file (as exported
// by most browser extensions) into a net/http.CookieJar, and can
// hot-reload it when the file changes on disk.
package cookiejar

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/net/publicsuffix"
)

// RequiredCookie is the one cookie the control-server handshake reads
// directly rather than carrying via the HTTP session (spec.md §6).
const RequiredCookie = "l_ortkn"

// Jar wraps a standard cookiejar.Jar, additionally exposing the value
// of RequiredCookie and optionally reloading from disk on change.
type Jar struct {
	http.CookieJar

	mu     sync.RWMutex
	ortkn  string
	path   string
	watch  *fsnotify.Watcher
}

// Load parses a Netscape cookie file and returns a Jar seeded from it.
// An empty path yields an empty, still-usable Jar.
func Load(path string) (*Jar, error) {
	base, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	j := &Jar{CookieJar: base, path: path}
	if path == "" {
		return j, nil
	}
	if err := j.reload(); err != nil {
		return nil, err
	}
	return j, nil
}

// OrtknValue returns the current l_ortkn cookie value, or "" if absent.
func (j *Jar) OrtknValue() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.ortkn
}

// WatchForChanges reloads the jar whenever the backing file is
// rewritten, logging nothing itself — callers observe via onReload.
// It returns a stop function. A Jar loaded from an empty path is a
// no-op.
func (j *Jar) WatchForChanges(onReload func(error)) (stop func(), err error) {
	if j.path == "" {
		return func() {}, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(j.path); err != nil {
		w.Close()
		return nil, err
	}
	j.watch = w
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if onReload != nil {
						onReload(j.reload())
					}
				}
			case <-w.Errors:
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		w.Close()
	}, nil
}

func (j *Jar) reload() error {
	entries, err := parseFile(j.path)
	if err != nil {
		return err
	}
	base, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}
	byHost := map[string][]*http.Cookie{}
	ortkn := ""
	for _, e := range entries {
		// A leading "." marks a domain cookie (sent to subdomains too);
		// without one the cookie is host-only.
		host := strings.TrimPrefix(e.domain, ".")
		c := &http.Cookie{
			Name:     e.name,
			Value:    e.value,
			Path:     e.path,
			Secure:   e.secure,
			HttpOnly: e.httpOnly,
		}
		if host != e.domain {
			c.Domain = host
		}
		byHost[host] = append(byHost[host], c)
		if e.name == RequiredCookie {
			ortkn = e.value
		}
	}
	for host, cookies := range byHost {
		base.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, cookies)
	}

	j.mu.Lock()
	j.CookieJar = base
	j.ortkn = ortkn
	j.mu.Unlock()
	return nil
}

type entry struct {
	domain   string
	httpOnly bool
	path     string
	secure   bool
	name     string
	value    string
}

// parseFile parses the Netscape tab-separated cookie file format:
// domain, flag, path, secure, expiration, name, value. A leading
// "#HttpOnly_" domain prefix sets HttpOnly and is stripped.
func parseFile(path string) ([]entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookie file: %w", err)
	}
	defer f.Close()

	var entries []entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#HttpOnly_")) {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}
		domain := fields[0]
		httpOnly := strings.HasPrefix(domain, "#HttpOnly_")
		domain = strings.TrimPrefix(domain, "#HttpOnly_")
		secure, _ := strconv.ParseBool(fields[3])
		entries = append(entries, entry{
			domain:   domain,
			httpOnly: httpOnly,
			path:     fields[2],
			secure:   secure,
			name:     fields[5],
			value:    fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	return entries, nil
}

package cookiejar

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ImportNetscape parses text in the Netscape/curl cookie-file format
// (tab-separated: domain, includeSubdomains flag, path, secure flag,
// expiry unix time, name, value) and stores every valid line. Malformed
// lines and comment/blank lines are skipped; the import is lossy by
// design (spec.md §4.6), matching the format's own limitations (no
// HttpOnly column in the classic format, no sub-second expiry).
func (j *Jar) ImportNetscape(text string) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	now := j.now()
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			continue
		}

		domain := strings.ToLower(strings.TrimPrefix(fields[0], "."))
		includeSubdomains := strings.EqualFold(fields[1], "TRUE")
		path := fields[2]
		secure := strings.EqualFold(fields[3], "TRUE")
		expiresUnix, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}
		name := fields[5]
		value := fields[6]
		if name == "" {
			continue
		}

		c := Cookie{
			Name:     name,
			Value:    value,
			Domain:   domain,
			Path:     path,
			Secure:   secure,
			HostOnly: !includeSubdomains,
			Created:  now,
		}
		if expiresUnix > 0 {
			c.Expires = time.Unix(expiresUnix, 0)
		}

		j.mu.Lock()
		j.entries[key{domain: c.Domain, path: c.Path, name: c.Name}] = c
		j.evictLocked(c.Domain)
		j.mu.Unlock()
	}
}

// ExportNetscape renders the jar's contents in Netscape cookie-file
// format. If domainFilter is non-empty, only cookies whose Domain equals
// a listed filter domain or is a subdomain of one are included.
func (j *Jar) ExportNetscape(domainFilter ...string) string {
	var sb strings.Builder
	sb.WriteString("# Netscape HTTP Cookie File\n")

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range j.entries {
		if len(domainFilter) > 0 && !matchesAnyFilter(c.Domain, domainFilter) {
			continue
		}
		includeSubdomains := "FALSE"
		if !c.HostOnly {
			includeSubdomains = "TRUE"
		}
		secure := "FALSE"
		if c.Secure {
			secure = "TRUE"
		}
		var expires int64
		if !c.Expires.IsZero() {
			expires = c.Expires.Unix()
		}
		domain := c.Domain
		if !c.HostOnly {
			domain = "." + domain
		}
		fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain, includeSubdomains, c.Path, secure, expires, c.Name, c.Value)
	}
	return sb.String()
}

func matchesAnyFilter(domain string, filters []string) bool {
	for _, f := range filters {
		f = strings.ToLower(strings.TrimPrefix(f, "."))
		if domain == f || strings.HasSuffix(domain, "."+f) {
			return true
		}
	}
	return false
}

// Package robots fetches and evaluates robots.txt crawl policy. Parsing and
// rule resolution are pure functions so precedence can be tested without
// network access; Policy adds the fetch-and-cache layer on top.
package robots

import (
	"bufio"
	"strings"
	"time"
)

// Rules is the resolved policy for one host as seen by our user agent.
type Rules struct {
	Allowed    bool          `json:"allowed"`
	Disallowed []string      `json:"disallowed"`
	CrawlDelay time.Duration `json:"-"`
}

// CrawlDelayMs exposes the delay in the wire unit used by callers.
func (r Rules) CrawlDelayMs() int64 {
	return r.CrawlDelay.Milliseconds()
}

// Section collects the directives of one user-agent block.
type Section struct {
	Disallowed []string
	CrawlDelay time.Duration
	HasDelay   bool
}

// Parse reads line-oriented robots.txt directives into per-agent sections.
// Directive keys are case-insensitive; consecutive User-agent lines share
// the section that follows them. Unknown directives and comments are
// ignored.
func Parse(body string) map[string]Section {
	sections := make(map[string]Section)
	var currentAgents []string
	lastWasAgent := false

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if !lastWasAgent {
				currentAgents = nil
			}
			currentAgents = append(currentAgents, strings.ToLower(value))
			if _, exists := sections[strings.ToLower(value)]; !exists {
				sections[strings.ToLower(value)] = Section{}
			}
			lastWasAgent = true
		case "disallow":
			lastWasAgent = false
			if value == "" {
				continue
			}
			for _, agent := range currentAgents {
				s := sections[agent]
				s.Disallowed = append(s.Disallowed, value)
				sections[agent] = s
			}
		case "crawl-delay":
			lastWasAgent = false
			delay, err := time.ParseDuration(value + "s")
			if err != nil {
				continue
			}
			for _, agent := range currentAgents {
				s := sections[agent]
				s.CrawlDelay = delay
				s.HasDelay = true
				sections[agent] = s
			}
		default:
			lastWasAgent = false
		}
	}
	return sections
}

// ResolveRules picks the section governing agent: an exact (case-insensitive)
// agent match wins over the wildcard "*"; with neither present the result is
// fully allowed with the default delay.
func ResolveRules(sections map[string]Section, agent string, defaultDelay time.Duration) Rules {
	section, ok := sections[strings.ToLower(agent)]
	if !ok {
		section, ok = sections["*"]
	}
	if !ok {
		return Rules{Allowed: true, CrawlDelay: defaultDelay}
	}

	rules := Rules{
		Allowed:    true,
		Disallowed: append([]string(nil), section.Disallowed...),
		CrawlDelay: defaultDelay,
	}
	if section.HasDelay {
		rules.CrawlDelay = section.CrawlDelay
	}
	for _, prefix := range rules.Disallowed {
		if prefix == "/" {
			rules.Allowed = false
			break
		}
	}
	return rules
}

// IsPathAllowed reports whether path escapes every disallowed prefix. This
// is plain prefix matching, not the full robots pattern language.
func IsPathAllowed(path string, rules Rules) bool {
	if !rules.Allowed {
		return false
	}
	if path == "" {
		path = "/"
	}
	for _, prefix := range rules.Disallowed {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

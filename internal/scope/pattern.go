package scope

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Semantic alias vocabulary. Each namespace maps alias values to the
// substrings or suffixes that identify a matching dataset name.
var aliasVocabulary = map[string]map[string][]string{
	"env": {
		"dev":     {"-dev", "dev-", "development"},
		"staging": {"-staging", "staging-", "stage"},
		"prod":    {"-prod", "prod-", "production"},
		"test":    {"-test", "test-", "testing"},
	},
	"source": {
		"github": {"github", "gh-"},
		"web":    {"web-", "-web", "docs-", "crawl"},
		"local":  {"local", "file-"},
	},
	"branch": {
		"main":   {"-main", "main-"},
		"master": {"-master", "master-"},
	},
}

var versionToken = regexp.MustCompile(`v?(\d+)\.(\d+)(?:\.(\d+))?(-[0-9A-Za-z.-]+)?`)

type parsedVersion struct {
	name       string
	base       string // name with the version token removed
	major      int
	minor      int
	patch      int
	prerelease bool
}

// ExpandPattern resolves a dataset pattern against the available dataset
// names. Precedence: semantic alias (ns:value), then glob, then literal.
// An empty pattern matches everything.
func ExpandPattern(pattern string, available []string) []string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		out := make([]string, len(available))
		copy(out, available)
		sort.Strings(out)
		return out
	}

	if ns, val, ok := strings.Cut(pattern, ":"); ok {
		if matched, handled := expandAlias(ns, val, available); handled {
			return matched
		}
	}

	if strings.ContainsAny(pattern, "*?[") {
		var out []string
		for _, name := range available {
			if ok, err := path.Match(pattern, name); err == nil && ok {
				out = append(out, name)
			}
		}
		sort.Strings(out)
		return out
	}

	for _, name := range available {
		if name == pattern {
			return []string{name}
		}
	}
	return nil
}

func expandAlias(ns, val string, available []string) ([]string, bool) {
	if ns == "version" {
		return expandVersionAlias(val, available), true
	}
	vocab, ok := aliasVocabulary[ns]
	if !ok {
		return nil, false
	}
	needles, ok := vocab[val]
	if !ok {
		// Unknown value in a known namespace: fall back to a plain
		// substring match on the value itself.
		needles = []string{val}
	}
	var out []string
	for _, name := range available {
		for _, n := range needles {
			if strings.Contains(name, n) || strings.HasSuffix(name, n) {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out, true
}

// expandVersionAlias handles version:latest, version:latest-pre, and
// version:<literal>. "latest" picks the maximum embedded semver-like token
// per base name, excluding pre-releases unless latest-pre is requested.
func expandVersionAlias(val string, available []string) []string {
	switch val {
	case "latest", "latest-pre":
		includePre := val == "latest-pre"
		best := map[string]parsedVersion{}
		for _, name := range available {
			pv, ok := parseEmbeddedVersion(name)
			if !ok {
				continue
			}
			if pv.prerelease && !includePre {
				continue
			}
			cur, exists := best[pv.base]
			if !exists || versionLess(cur, pv) {
				best[pv.base] = pv
			}
		}
		out := make([]string, 0, len(best))
		for _, pv := range best {
			out = append(out, pv.name)
		}
		sort.Strings(out)
		return out
	default:
		var out []string
		for _, name := range available {
			if strings.Contains(name, val) {
				out = append(out, name)
			}
		}
		sort.Strings(out)
		return out
	}
}

func parseEmbeddedVersion(name string) (parsedVersion, bool) {
	loc := versionToken.FindStringSubmatchIndex(name)
	if loc == nil {
		return parsedVersion{}, false
	}
	m := versionToken.FindStringSubmatch(name)
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}
	base := strings.Trim(name[:loc[0]]+name[loc[1]:], "-_.")
	return parsedVersion{
		name:       name,
		base:       base,
		major:      major,
		minor:      minor,
		patch:      patch,
		prerelease: m[4] != "",
	}, true
}

func versionLess(a, b parsedVersion) bool {
	if a.major != b.major {
		return a.major < b.major
	}
	if a.minor != b.minor {
		return a.minor < b.minor
	}
	if a.patch != b.patch {
		return a.patch < b.patch
	}
	// Release beats pre-release at the same number.
	return a.prerelease && !b.prerelease
}

package esbuild

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/evanw/esbuild/pkg/api"
)

// browser describes one engine known to the query parser.
type browser struct {
	engine api.EngineName
	// current is the newest major version queries are resolved against.
	current uint64
	// oldest is the lowest major version "last N versions" can reach.
	oldest uint64
	// dead browsers are excluded from "defaults".
	dead bool
}

var browsers = map[string]browser{
	"chrome":  {engine: api.EngineChrome, current: 141, oldest: 4},
	"edge":    {engine: api.EngineEdge, current: 141, oldest: 12},
	"firefox": {engine: api.EngineFirefox, current: 143, oldest: 2},
	"safari":  {engine: api.EngineSafari, current: 18, oldest: 3},
	"opera":   {engine: api.EngineOpera, current: 122, oldest: 9},
	"ios":     {engine: api.EngineIOS, current: 18, oldest: 3},
	"ie":      {engine: api.EngineIE, current: 11, oldest: 6, dead: true},
}

var aliases = map[string]string{
	"ff":       "firefox",
	"explorer": "ie",
	"ios_saf":  "ios",
	"msedge":   "edge",
}

var engineNames = map[api.EngineName]string{
	api.EngineChrome:  "chrome",
	api.EngineEdge:    "edge",
	api.EngineFirefox: "firefox",
	api.EngineSafari:  "safari",
	api.EngineOpera:   "opera",
	api.EngineIOS:     "ios",
	api.EngineIE:      "ie",
}

// ParseBrowsers resolves a browserslist-style query list into esbuild
// engines. Supported queries are "defaults", "last N versions",
// "last N <browser> versions" and "<browser> >= <version>". The lowest
// version requested for each browser wins. An empty list means "defaults".
func ParseBrowsers(queries []string) ([]api.Engine, error) {
	if len(queries) == 0 {
		queries = []string{"defaults"}
	}
	lowest := make(map[string]*semver.Version)
	lower := func(name string, v *semver.Version) {
		if cur, ok := lowest[name]; !ok || v.LessThan(cur) {
			lowest[name] = v
		}
	}

	for _, raw := range queries {
		q := strings.ToLower(strings.TrimSpace(raw))
		fields := strings.Fields(q)
		switch {
		case q == "defaults":
			for name, b := range browsers {
				if !b.dead {
					lower(name, lastVersions(b, 2))
				}
			}
		case len(fields) == 3 && fields[0] == "last" && fields[2] == "versions":
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid browser query %q", raw)
			}
			for name, b := range browsers {
				lower(name, lastVersions(b, n))
			}
		case len(fields) == 4 && fields[0] == "last" && fields[3] == "versions":
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid browser query %q", raw)
			}
			name, b, err := lookupBrowser(fields[2])
			if err != nil {
				return nil, err
			}
			lower(name, lastVersions(b, n))
		case len(fields) == 3 && fields[1] == ">=":
			name, _, err := lookupBrowser(fields[0])
			if err != nil {
				return nil, err
			}
			v, err := semver.NewVersion(fields[2])
			if err != nil {
				return nil, fmt.Errorf("invalid version in browser query %q: %w", raw, err)
			}
			lower(name, v)
		default:
			return nil, fmt.Errorf("unsupported browser query %q", raw)
		}
	}

	names := make([]string, 0, len(lowest))
	for name := range lowest {
		names = append(names, name)
	}
	sort.Strings(names)
	engines := make([]api.Engine, 0, len(names))
	for _, name := range names {
		engines = append(engines, api.Engine{
			Name:    browsers[name].engine,
			Version: versionString(lowest[name]),
		})
	}
	return engines, nil
}

func lookupBrowser(name string) (string, browser, error) {
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	b, ok := browsers[name]
	if !ok {
		return "", browser{}, fmt.Errorf("unknown browser %q", name)
	}
	return name, b, nil
}

func lastVersions(b browser, n int) *semver.Version {
	major := b.oldest
	if b.current >= uint64(n-1)+b.oldest {
		major = b.current - uint64(n-1)
	}
	return semver.New(major, 0, 0, "", "")
}

func versionString(v *semver.Version) string {
	if v.Patch() > 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
	}
	if v.Minor() > 0 {
		return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
	}
	return strconv.FormatUint(v.Major(), 10)
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"esnext": api.ESNext,
}

// ParseTarget maps an ECMAScript version name to an esbuild target.
// The empty string selects es5.
func ParseTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ES5, nil
	}
	t, ok := targets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown JavaScript target %q", name)
	}
	return t, nil
}

package luaplugin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Shopify/go-lua"
)

// Script summarizes what a plugin script declares.
type Script struct {
	AppIDs    []string          `json:"appids"`
	DepotKeys map[string]string `json:"depot_keys,omitempty"`
	Manifests map[string]string `json:"manifests,omitempty"`
	Tokens    map[string]string `json:"tokens,omitempty"`
	// Executed is false when the script was read by the line parser
	// instead of being run.
	Executed bool `json:"executed"`
}

// AppCount is the number of distinct addappid ids.
func (s *Script) AppCount() int { return len(s.AppIDs) }

// DepotCount is the number of setManifestid depots.
func (s *Script) DepotCount() int { return len(s.Manifests) }

func newScript() *Script {
	return &Script{
		DepotKeys: make(map[string]string),
		Manifests: make(map[string]string),
		Tokens:    make(map[string]string),
	}
}

func (s *Script) addAppID(id, key string) {
	for _, existing := range s.AppIDs {
		if existing == id {
			if key != "" {
				s.DepotKeys[id] = key
			}
			return
		}
	}
	s.AppIDs = append(s.AppIDs, id)
	if key != "" {
		s.DepotKeys[id] = key
	}
}

// maxExecSize bounds the scripts that are run. Larger ones are read line
// by line.
const maxExecSize = 256 << 10

// Scripts with control flow are never run: there is no instruction limit
// on the Lua state, so a loop could hang the caller. Concatenation is
// refused too, since a chain of a = a .. a doubles memory per statement.
var unsafeCode = regexp.MustCompile(`\b(while|repeat|for|goto|function)\b|\.\.`)

// Inspect runs src in a Lua state that only knows addappid, setManifestid
// and addtoken, collecting their arguments. No standard library is opened.
// Scripts that cannot be run are read line by line instead.
func Inspect(src string) *Script {
	if len(src) > maxExecSize || unsafeCode.MatchString(stripComments(src)) {
		return parseLines(src)
	}
	script, err := execute(src)
	if err != nil {
		return parseLines(src)
	}
	return script
}

func execute(src string) (*Script, error) {
	script := newScript()

	l := lua.NewState()

	l.Register("addappid", func(state *lua.State) int {
		id := argString(state, 1)
		if id == "" {
			lua.Errorf(state, "addappid: missing id")
		}
		script.addAppID(id, argString(state, 3))
		return 0
	})
	l.Register("setManifestid", func(state *lua.State) int {
		depot, manifest := argString(state, 1), argString(state, 2)
		if depot == "" || manifest == "" {
			lua.Errorf(state, "setManifestid: missing argument")
		}
		script.Manifests[depot] = manifest
		return 0
	})
	l.Register("addtoken", func(state *lua.State) int {
		app, token := argString(state, 1), argString(state, 2)
		if app == "" {
			lua.Errorf(state, "addtoken: missing app")
		}
		script.Tokens[app] = token
		return 0
	})

	if err := lua.LoadString(l, src); err != nil {
		return nil, fmt.Errorf("loading script: %w", err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("running script: %w", err)
	}

	script.Executed = true
	return script, nil
}

// argString returns argument i as a string, or "" when it is absent or
// not convertible.
func argString(l *lua.State, i int) string {
	if l.IsNoneOrNil(i) {
		return ""
	}
	s, ok := l.ToString(i)
	if !ok {
		return ""
	}
	return s
}

var (
	callPattern = regexp.MustCompile(`(addappid|setManifestid|addtoken)\s*\(([^)]*)\)`)
	lineComment = regexp.MustCompile(`--[^\n]*`)
)

func stripComments(src string) string {
	return lineComment.ReplaceAllString(src, "")
}

func parseLines(src string) *Script {
	script := newScript()
	for _, m := range callPattern.FindAllStringSubmatch(stripComments(src), -1) {
		args := splitArgs(m[2])
		switch m[1] {
		case "addappid":
			if len(args) == 0 || args[0] == "" {
				continue
			}
			key := ""
			if len(args) > 2 {
				key = args[2]
			}
			script.addAppID(args[0], key)
		case "setManifestid":
			if len(args) >= 2 {
				script.Manifests[args[0]] = args[1]
			}
		case "addtoken":
			if len(args) >= 2 {
				script.Tokens[args[0]] = args[1]
			}
		}
	}
	return script
}

func splitArgs(raw string) []string {
	parts := strings.Split(raw, ",")
	args := make([]string, 0, len(parts))
	for _, p := range parts {
		args = append(args, strings.Trim(strings.TrimSpace(p), `"'`))
	}
	return args
}

package extract

import (
	"encoding/json"
	"strings"

	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

// languageAliases maps lowercase fence tags to canonical languages.
var languageAliases = map[string]session.Language{
	"rust":       session.LangRust,
	"rs":         session.LangRust,
	"python":     session.LangPython,
	"py":         session.LangPython,
	"javascript": session.LangJavaScript,
	"js":         session.LangJavaScript,
	"typescript": session.LangTypeScript,
	"ts":         session.LangTypeScript,
	"java":       session.LangJava,
	"go":         session.LangGo,
	"golang":     session.LangGo,
	"cpp":        session.LangCpp,
	"c++":        session.LangCpp,
	"c":          session.LangC,
	"swift":      session.LangSwift,
	"kotlin":     session.LangKotlin,
	"kt":         session.LangKotlin,
	"ruby":       session.LangRuby,
	"rb":         session.LangRuby,
	"php":        session.LangPHP,
	"dart":       session.LangDart,
	"shell":      session.LangShell,
	"bash":       session.LangShell,
	"sh":         session.LangShell,
	"zsh":        session.LangShell,
	"sql":        session.LangSQL,
	"html":       session.LangHTML,
	"css":        session.LangCSS,
	"markdown":   session.LangMarkdown,
	"md":         session.LangMarkdown,
	"json":       session.LangJSON,
	"yaml":       session.LangYAML,
	"yml":        session.LangYAML,
	"toml":       session.LangTOML,
}

// Detector classifies code into programming languages. The zero value is
// ready to use and safe for concurrent use.
type Detector struct{}

// Detect resolves the language of a code block. A non-empty hint always wins
// over content heuristics.
func (d Detector) Detect(hint, code string) session.Language {
	if lang := d.FromHint(hint); !lang.IsZero() {
		return lang
	}
	return d.FromContent(code)
}

// FromHint looks up a fence tag. Unrecognized tags are returned verbatim so
// the information is not lost; an empty tag returns the zero Language.
func (Detector) FromHint(hint string) session.Language {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	if lang, ok := languageAliases[strings.ToLower(hint)]; ok {
		return lang
	}
	return session.Language(hint)
}

// FromContent applies ordered keyword heuristics; the first match wins.
// Returns the zero Language when nothing matches.
func (Detector) FromContent(code string) session.Language {
	lower := strings.ToLower(code)

	switch {
	case containsAny(code, "fn ", "let ", "impl ", "struct ", "enum ", "trait "):
		return session.LangRust

	case containsAny(code, "def ", "import ", "from ", "class ") ||
		strings.Contains(lower, "print("):
		return session.LangPython

	case containsAny(code, "function ", "const ", "var ", "=>", "console.log"):
		// "let " was claimed by Rust above.
		if strings.Contains(code, ": ") && containsAny(code, "interface ", "type ") {
			return session.LangTypeScript
		}
		return session.LangJavaScript

	case containsAny(code, "public class ", "private ", "protected ", "System.out."):
		return session.LangJava

	case containsAny(code, "func ", "package ", "import (", "fmt."):
		return session.LangGo

	case strings.HasPrefix(code, "#!/bin/bash"), strings.HasPrefix(code, "#!/bin/sh"),
		containsAny(code, "echo ", "$"):
		return session.LangShell

	case containsAny(lower, "select ", "insert ", "update ", "create table"):
		return session.LangSQL

	case strings.Contains(code, "</") && strings.Contains(code, "<") &&
		containsAny(code, "html", "div"):
		return session.LangHTML

	case strings.Contains(code, "{") && strings.Contains(code, ":") && strings.Contains(code, ";") &&
		containsAny(code, "color", "margin", "padding"):
		return session.LangCSS
	}

	if looksLikeJSON(code) {
		return session.LangJSON
	}
	return ""
}

// looksLikeJSON only accepts text that actually parses.
func looksLikeJSON(code string) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) < 2 {
		return false
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	if !(first == '{' && last == '}') && !(first == '[' && last == ']') {
		return false
	}
	return json.Valid([]byte(trimmed))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

package session

// Language is a programming language tag. Recognized languages use the
// canonical names below; any other value is an unrecognized hint preserved
// verbatim.
type Language string

const (
	LangRust       Language = "rust"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangJava       Language = "java"
	LangGo         Language = "go"
	LangCpp        Language = "cpp"
	LangC          Language = "c"
	LangSwift      Language = "swift"
	LangKotlin     Language = "kotlin"
	LangRuby       Language = "ruby"
	LangPHP        Language = "php"
	LangDart       Language = "dart"
	LangShell      Language = "shell"
	LangSQL        Language = "sql"
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangMarkdown   Language = "markdown"
	LangJSON       Language = "json"
	LangYAML       Language = "yaml"
	LangTOML       Language = "toml"
)

var knownLanguages = map[Language]struct{}{
	LangRust: {}, LangPython: {}, LangJavaScript: {}, LangTypeScript: {},
	LangJava: {}, LangGo: {}, LangCpp: {}, LangC: {}, LangSwift: {},
	LangKotlin: {}, LangRuby: {}, LangPHP: {}, LangDart: {}, LangShell: {},
	LangSQL: {}, LangHTML: {}, LangCSS: {}, LangMarkdown: {}, LangJSON: {},
	LangYAML: {}, LangTOML: {},
}

// Known reports whether l is one of the canonical languages.
func (l Language) Known() bool {
	_, ok := knownLanguages[l]
	return ok
}

// IsZero reports whether no language was detected.
func (l Language) IsZero() bool {
	return l == ""
}

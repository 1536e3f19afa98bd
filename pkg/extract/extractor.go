package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

// Config toggles the individual sub-extractors.
type Config struct {
	ExtractCodeBlocks          bool `koanf:"extract_code_blocks" json:"extract_code_blocks"`
	ExtractFilePaths           bool `koanf:"extract_file_paths" json:"extract_file_paths"`
	ExtractCommands            bool `koanf:"extract_commands" json:"extract_commands"`
	ExtractURLs                bool `koanf:"extract_urls" json:"extract_urls"`
	TokenizeContent            bool `koanf:"tokenize_content" json:"tokenize_content"`
	DetectProgrammingLanguages bool `koanf:"detect_programming_languages" json:"detect_programming_languages"`

	// AnalyzeSentiment is reserved for downstream analyzers and has no effect here.
	AnalyzeSentiment bool `koanf:"analyze_sentiment" json:"analyze_sentiment"`

	// RedactSecrets passes FormattedText through the Redactor given to New.
	RedactSecrets bool `koanf:"redact_secrets" json:"redact_secrets"`
}

// DefaultConfig enables every extractor except sentiment and redaction.
func DefaultConfig() Config {
	return Config{
		ExtractCodeBlocks:          true,
		ExtractFilePaths:           true,
		ExtractCommands:            true,
		ExtractURLs:                true,
		TokenizeContent:            true,
		DetectProgrammingLanguages: true,
	}
}

// Redactor removes secrets from text.
type Redactor interface {
	Redact(text string) string
}

const (
	// inlineCodeDensity is the share of code-indicator characters an inline
	// span needs before it is treated as code.
	inlineCodeDensity = 0.2

	// mentionContextRadius is the number of bytes kept on each side of a mention.
	mentionContextRadius = 50
)

// patterns is compiled once per Extractor and never mutated.
type patterns struct {
	fencedCode   *regexp.Regexp
	inlineCode   *regexp.Regexp
	fileHint     *regexp.Regexp
	url          *regexp.Regexp
	markdownLink *regexp.Regexp
	filePath     *regexp.Regexp
	functionCall *regexp.Regexp
	identifier   *regexp.Regexp
	command      *regexp.Regexp
	blankRuns    *regexp.Regexp

	tokenFilePath *regexp.Regexp
	tokenCommand  *regexp.Regexp
}

func compilePatterns() patterns {
	return patterns{
		fencedCode:   regexp.MustCompile("(?s)```([\\w+#.-]*)[ \\t]*\\r?\\n(.*?)\\r?\\n```"),
		inlineCode:   regexp.MustCompile("`([^`\\n]+)`"),
		fileHint:     regexp.MustCompile(`^\s*(?://|#|/\*|<!--)\s*([^\s]+\.\w+)`),
		url:          regexp.MustCompile(`https?://[^\s)\]>"'` + "`" + `]+`),
		markdownLink: regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`),
		filePath:     regexp.MustCompile(`(?:^|[\s"'(\[<` + "`" + `])((?:~|\.{1,2})?/?[\w.-]+(?:/[\w.-]+)*/?)`),
		functionCall: regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(([^()\n]*)\)`),
		identifier:   regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`),
		command:      regexp.MustCompile(`(?m)(?:^|[ \t])([$>#])[ \t]*(\S[^\r\n]*)`),
		blankRuns:    regexp.MustCompile(`\n{3,}`),

		tokenFilePath: regexp.MustCompile(`^[~/\w.-]*[\w-]\.[A-Za-z]\w*$`),
		tokenCommand:  regexp.MustCompile(`^[$>#]\w`),
	}
}

var keywords = map[string]struct{}{
	"function": {}, "class": {}, "struct": {}, "enum": {}, "interface": {},
	"type": {}, "let": {}, "const": {}, "var": {}, "def": {}, "fn": {},
	"impl": {}, "trait": {}, "if": {}, "else": {}, "for": {}, "while": {},
	"match": {}, "switch": {}, "import": {}, "from": {}, "use": {},
	"package": {}, "namespace": {},
}

var filePathFalsePositives = map[string]struct{}{
	"e.g": {}, "i.e": {}, "etc": {}, "vs": {},
}

// Extractor turns raw block text into structured content. It holds only
// immutable state and is safe for concurrent use.
type Extractor struct {
	cfg      Config
	detector Detector
	redactor Redactor
	p        patterns
}

// New compiles the pattern set. redactor may be nil, in which case
// RedactSecrets has no effect.
func New(cfg Config, redactor Redactor) *Extractor {
	return &Extractor{
		cfg:      cfg,
		redactor: redactor,
		p:        compilePatterns(),
	}
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract runs every enabled sub-extractor over text. Sub-extractors are
// independent; none can prevent another from running.
func (e *Extractor) Extract(text string) session.BlockContent {
	content := session.BlockContent{
		RawText:        text,
		FormattedText:  e.formatText(text),
		WordCount:      len(strings.Fields(text)),
		CharacterCount: utf8.RuneCountInString(text),
		Tokens:         []session.ContentToken{},
		CodeBlocks:     []session.CodeBlock{},
		Links:          []session.Link{},
		Mentions:       []session.Mention{},
	}

	if e.cfg.ExtractCodeBlocks {
		content.CodeBlocks = e.CodeBlocks(text)
	}
	if e.cfg.ExtractURLs {
		content.Links = e.Links(text)
	}
	if e.cfg.TokenizeContent {
		content.Tokens = e.Tokens(text)
	}
	content.Mentions = e.Mentions(text)

	return content
}

// CodeBlocks returns fenced blocks followed by inline spans that look like code.
func (e *Extractor) CodeBlocks(text string) []session.CodeBlock {
	blocks := []session.CodeBlock{}
	var fenced []span

	for _, m := range e.p.fencedCode.FindAllStringSubmatchIndex(text, -1) {
		hint := submatch(text, m, 1)
		code := strings.TrimSuffix(submatch(text, m, 2), "\r")
		fenced = append(fenced, span{m[0], m[1]})

		blocks = append(blocks, session.CodeBlock{
			Language: e.language(hint, code),
			Content:  code,
			Filename: e.filenameHint(code),
			Start:    m[0],
			End:      m[1],
		})
	}

	for _, m := range e.p.inlineCode.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(fenced, m[0], m[1]) {
			continue
		}
		code := submatch(text, m, 1)
		if !looksLikeCode(code) {
			continue
		}
		blocks = append(blocks, session.CodeBlock{
			Language: e.language("", code),
			Content:  code,
			Inline:   true,
			Start:    m[0],
			End:      m[1],
		})
	}

	return blocks
}

func (e *Extractor) language(hint, code string) session.Language {
	if !e.cfg.DetectProgrammingLanguages {
		return e.detector.FromHint(hint)
	}
	return e.detector.Detect(hint, code)
}

// filenameHint reads a filename from a comment on the first code line.
func (e *Extractor) filenameHint(code string) string {
	first, _, _ := strings.Cut(code, "\n")
	if m := e.p.fileHint.FindStringSubmatch(first); m != nil {
		return m[1]
	}
	return ""
}

// looksLikeCode applies the inline-code punctuation density rule.
func looksLikeCode(s string) bool {
	if s == "" {
		return false
	}
	indicators := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', ')', '{', '}', '[', ']', ';', '=', '.', ':', '$':
			indicators++
		}
	}
	return float64(indicators)/float64(len(s)) > inlineCodeDensity
}

// Links returns markdown links followed by bare URLs not already covered,
// de-duplicated by URL.
func (e *Extractor) Links(text string) []session.Link {
	links := []session.Link{}
	seen := make(map[string]struct{})
	var covered []span

	for _, m := range e.p.markdownLink.FindAllStringSubmatchIndex(text, -1) {
		covered = append(covered, span{m[0], m[1]})
		url := submatch(text, m, 2)
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		links = append(links, session.Link{
			URL:   url,
			Title: submatch(text, m, 1),
			Type:  ClassifyLink(url),
		})
	}

	for _, m := range e.p.url.FindAllStringIndex(text, -1) {
		if overlaps(covered, m[0], m[1]) {
			continue
		}
		url := strings.TrimRight(text[m[0]:m[1]], `.,;:!?'"`)
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		links = append(links, session.Link{URL: url, Type: ClassifyLink(url)})
	}

	return links
}

// ClassifyLink assigns a LinkType by substring rules, checked in order.
func ClassifyLink(url string) session.LinkType {
	lower := strings.ToLower(url)

	switch {
	case containsAny(lower, "github.com", "gitlab.com", "bitbucket.org"):
		return session.LinkRepository
	case containsAny(lower, "docs.", "/docs/", "documentation", "/api/"):
		return session.LinkDocumentation
	case strings.HasPrefix(lower, "file://"), strings.Contains(lower, "localhost"):
		return session.LinkFile
	case !strings.Contains(lower, "://") &&
		(strings.HasPrefix(url, "#") || strings.HasPrefix(url, "/") ||
			strings.HasPrefix(url, "./") || strings.HasPrefix(url, "../")):
		return session.LinkInternal
	}
	return session.LinkExternal
}

// Mentions returns file, function, variable and command mentions. Each
// (type, text) pair is reported once, at its first occurrence.
func (e *Extractor) Mentions(text string) []session.Mention {
	mentions := []session.Mention{}
	seen := make(map[session.Mention]struct{})
	add := func(typ session.MentionType, value string, start, end int) {
		key := session.Mention{Text: value, Type: typ}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		key.Context = mentionContext(text, start, end)
		mentions = append(mentions, key)
	}

	var urls []span
	for _, m := range e.p.url.FindAllStringIndex(text, -1) {
		urls = append(urls, span{m[0], m[1]})
	}

	if e.cfg.ExtractFilePaths {
		for _, m := range e.p.filePath.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2], m[3]
			path := strings.TrimRight(text[start:end], ".")
			end = start + len(path)
			if overlaps(urls, start, end) || !IsFilePath(path) {
				continue
			}
			add(session.MentionFile, path, start, end)
		}
	}

	for _, m := range e.p.functionCall.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(urls, m[0], m[1]) {
			continue
		}
		add(session.MentionFunction, submatch(text, m, 1), m[0], m[1])
	}

	for _, m := range e.p.identifier.FindAllStringIndex(text, -1) {
		ident := text[m[0]:m[1]]
		if overlaps(urls, m[0], m[1]) || !LooksLikeVariable(ident) {
			continue
		}
		add(session.MentionVariable, ident, m[0], m[1])
	}

	if e.cfg.ExtractCommands {
		for _, m := range e.p.command.FindAllStringSubmatchIndex(text, -1) {
			start := m[2]
			cmd := strings.TrimSpace(text[start:m[5]])
			add(session.MentionCommand, cmd, start, m[5])
		}
	}

	return mentions
}

// IsFilePath reports whether s is shaped like a path: it has a dot extension
// or starts from a path root ("/", "./", "../", "~/").
func IsFilePath(s string) bool {
	if len(s) < 3 || strings.Contains(s, "://") {
		return false
	}
	if isFilePathFalsePositive(s) {
		return false
	}

	base := s
	if i := strings.LastIndex(s, "/"); i >= 0 {
		base = s[i+1:]
	}
	if dot := strings.LastIndex(base, "."); dot > 0 && dot < len(base)-1 {
		ext := base[dot+1:]
		if len(ext) <= 10 && unicode.IsLetter(rune(ext[0])) {
			return true
		}
	}

	for _, root := range []string{"/", "./", "../", "~/"} {
		if strings.HasPrefix(s, root) && len(s) > len(root) {
			return true
		}
	}
	return false
}

func isFilePathFalsePositive(s string) bool {
	_, ok := filePathFalsePositives[strings.ToLower(s)]
	return ok
}

// LooksLikeVariable reports whether ident is shaped like a program variable
// rather than prose: snake_case or camelCase, longer than one character.
func LooksLikeVariable(ident string) bool {
	if len(ident) < 2 || strings.IndexFunc(ident, unicode.IsLetter) < 0 {
		return false
	}
	for i := 1; i < len(ident); i++ {
		c, prev := ident[i], ident[i-1]
		if c == '_' && i < len(ident)-1 {
			return true
		}
		if c >= 'A' && c <= 'Z' && prev >= 'a' && prev <= 'z' {
			return true
		}
	}
	return false
}

// Tokens splits text on whitespace and classifies each token.
func (e *Extractor) Tokens(text string) []session.ContentToken {
	tokens := []session.ContentToken{}
	offset := 0
	for _, field := range strings.Fields(text) {
		pos := offset + strings.Index(text[offset:], field)
		tokens = append(tokens, session.ContentToken{
			Text:     field,
			Type:     e.ClassifyToken(field),
			Position: pos,
			Length:   len(field),
		})
		offset = pos + len(field)
	}
	return tokens
}

// ClassifyToken assigns a TokenType by fixed precedence.
func (e *Extractor) ClassifyToken(tok string) session.TokenType {
	lower := strings.ToLower(tok)

	switch {
	case !strings.Contains(tok, "://") && !isFilePathFalsePositive(tok) && e.p.tokenFilePath.MatchString(tok):
		return session.TokenFilePath
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return session.TokenURL
	case e.p.tokenCommand.MatchString(tok):
		return session.TokenCommand
	case isNumber(tok):
		return session.TokenNumber
	case len(tok) > 2 && strings.HasSuffix(tok, "()"):
		return session.TokenFunction
	case strings.Contains(tok, "::"):
		return session.TokenMethod
	}

	if _, ok := keywords[lower]; ok {
		return session.TokenKeyword
	}
	if isQuoted(tok) {
		return session.TokenString
	}
	if strings.IndexFunc(tok, func(r rune) bool { return !unicode.IsPunct(r) && !unicode.IsSymbol(r) }) < 0 {
		return session.TokenPunctuation
	}
	return session.TokenWord
}

func isNumber(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == '-':
		default:
			return false
		}
	}
	return digits > 0
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return first == last && (first == '"' || first == '\'' || first == '`')
}

// formatText normalizes line endings and blank runs, then redacts secrets
// when enabled.
func (e *Extractor) formatText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	text = e.p.blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	if e.cfg.RedactSecrets && e.redactor != nil {
		text = e.redactor.Redact(text)
	}
	return text
}

// mentionContext returns the text around [start, end), widened by
// mentionContextRadius bytes and clamped to rune boundaries.
func mentionContext(text string, start, end int) string {
	lo := max(start-mentionContextRadius, 0)
	hi := min(end+mentionContextRadius, len(text))
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

type span struct{ start, end int }

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

func submatch(text string, m []int, group int) string {
	if m[2*group] < 0 {
		return ""
	}
	return text[m[2*group]:m[2*group+1]]
}

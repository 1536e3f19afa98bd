// Package extract turns the raw text of a conversation turn into structured
// content: fenced and inline code blocks with their languages, links,
// mentions of files, functions, variables and commands, and classified tokens.
//
// An Extractor compiles its patterns once and holds no mutable state, so one
// instance is shared by every concurrent file parse.
package extract

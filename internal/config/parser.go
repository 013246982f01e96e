package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseConfig reads the configuration file at path, decodes it and checks
// it against the refresh schema. The format comes from the extension
// (.json, .yaml, .yml); other extensions are sniffed from the content.
// Schema validation only runs when the file decoded cleanly.
func ParseConfig(path string) *Result {
	result := &Result{FilePath: path}

	content, err := os.ReadFile(path)
	if err != nil {
		result.ParseErrors = []ParseError{{
			Path:    path,
			Message: fmt.Sprintf("failed to read file: %v", err),
			Type:    ErrorTypeIO,
		}}
		return result
	}

	result.Format = formatFromExtension(path)
	if result.Format == "" {
		result.Format = sniffFormat(content)
	}

	data, parseErrs := decode(content, result.Format)
	for i := range parseErrs {
		parseErrs[i].Path = path
	}
	result.Data = data
	result.ParseErrors = parseErrs
	if len(parseErrs) > 0 {
		return result
	}

	result.ValidationErrors = ValidateConfig(data).Errors
	return result
}

func formatFromExtension(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return ""
	}
}

// sniffFormat treats content opening with a brace as JSON and anything
// else as YAML.
func sniffFormat(content []byte) Format {
	if bytes.HasPrefix(bytes.TrimSpace(content), []byte("{")) {
		return FormatJSON
	}
	return FormatYAML
}

func decode(content []byte, format Format) (map[string]interface{}, []ParseError) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, []ParseError{{
			Message: fmt.Sprintf("empty content: expected a %s mapping", format),
			Type:    ErrorTypeSyntax,
		}}
	}
	if format == FormatJSON {
		return decodeJSON(content)
	}
	return decodeYAML(content)
}

// ============================================================================
// JSON
// ============================================================================

func decodeJSON(content []byte) (map[string]interface{}, []ParseError) {
	var data interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, []ParseError{jsonError(err, content)}
	}

	switch v := data.(type) {
	case map[string]interface{}:
		return v, nil
	case nil:
		return nil, []ParseError{noSectionsError()}
	default:
		return nil, []ParseError{{
			Line:    1,
			Column:  1,
			Message: fmt.Sprintf("expected a JSON object of configuration sections, got %s", jsonKind(v)),
			Type:    ErrorTypeFormat,
		}}
	}
}

func jsonError(err error, content []byte) ParseError {
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return ParseError{Message: err.Error(), Type: ErrorTypeSyntax}
	}
	line, column := offsetToLineColumn(content, syntaxErr.Offset)
	return ParseError{
		Section: jsonSectionAt(content, syntaxErr.Offset),
		Line:    line,
		Column:  column,
		Message: syntaxErr.Error(),
		Type:    ErrorTypeSyntax,
	}
}

// offsetToLineColumn converts a byte offset to 1-based line and column.
func offsetToLineColumn(content []byte, offset int64) (line, column int) {
	line, column = 1, 1
	for i := int64(0); i < offset && i < int64(len(content)); i++ {
		if content[i] == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}

// jsonSectionAt returns the top-level key whose value encloses offset.
// It scans tokens up to offset, tracking nesting depth and the last key
// seen directly under the root object.
func jsonSectionAt(content []byte, offset int64) string {
	end := int(offset)
	if end > len(content) {
		end = len(content)
	}

	var (
		depth    int
		inString bool
		escaped  bool
		start    int
		lastKey  string
		section  string
	)
	for i := 0; i < end; i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				if depth == 1 {
					lastKey = string(content[start:i])
				}
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			start = i + 1
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case ':':
			if depth == 1 {
				section = lastKey
			}
		case ',':
			if depth == 1 {
				section = ""
			}
		}
	}
	return section
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case []interface{}:
		return "an array"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// ============================================================================
// YAML
// ============================================================================

func decodeYAML(content []byte) (map[string]interface{}, []ParseError) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, []ParseError{yamlError(err, content)}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, []ParseError{noSectionsError()}
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.ShortTag() == "!!null" {
		return nil, []ParseError{noSectionsError()}
	}
	if root.Kind != yaml.MappingNode {
		return nil, []ParseError{{
			Line:    root.Line,
			Column:  root.Column,
			Message: fmt.Sprintf("expected a YAML mapping of configuration sections, got %s", yamlKind(root)),
			Type:    ErrorTypeFormat,
		}}
	}

	var data map[string]interface{}
	if err := root.Decode(&data); err != nil {
		return nil, []ParseError{yamlError(err, content)}
	}
	return data, nil
}

// yamlError locates a yaml.v3 error, whose messages read
// "yaml: line N: ..." for syntax errors and "line N: ..." per entry of a
// TypeError.
func yamlError(err error, content []byte) ParseError {
	pe := ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		pe.Message = "YAML type error: " + strings.Join(typeErr.Errors, "; ")
		if len(typeErr.Errors) > 0 {
			fmt.Sscanf(typeErr.Errors[0], "line %d:", &pe.Line)
		}
	} else {
		fmt.Sscanf(err.Error(), "yaml: line %d:", &pe.Line)
	}

	if pe.Line > 0 {
		pe.Section = yamlSectionAt(content, pe.Line)
	}
	return pe
}

// yamlSectionAt returns the last top-level mapping key at or above line.
// Top-level keys are the unindented "key:" lines of a block mapping.
func yamlSectionAt(content []byte, line int) string {
	var section string
	sc := bufio.NewScanner(bytes.NewReader(content))
	for n := 1; n <= line && sc.Scan(); n++ {
		text := sc.Text()
		if text == "" || text[0] == ' ' || text[0] == '\t' || text[0] == '#' || text[0] == '-' {
			continue
		}
		if key, _, ok := strings.Cut(text, ":"); ok {
			section = strings.Trim(strings.TrimSpace(key), `"'`)
		}
	}
	return section
}

func yamlKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "an unknown node"
	}
}

func noSectionsError() ParseError {
	return ParseError{
		Message: fmt.Sprintf("no configuration found: expected one or more of %s", strings.Join(Sections, ", ")),
		Type:    ErrorTypeFormat,
	}
}

// Package docs renders the tool catalogue as Markdown, HTML and an OpenAPI
// document for the HTTP transport
package docs

import (
	"bytes"
	"fmt"
	"html"
	"letta-mcp-server/internal/schema"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Title turns a tool name such as letta_agent_advanced into Letta Agent Advanced
func Title(name string) string {
	caser := cases.Title(language.English)
	return caser.String(strings.ReplaceAll(name, "_", " "))
}

// Markdown renders one section per tool with its operations and arguments
func Markdown(tools []*schema.Tool) string {
	var b strings.Builder
	b.WriteString("# Letta MCP tools\n\n")
	for _, tool := range tools {
		fmt.Fprintf(&b, "## %s (`%s`)\n\n", Title(tool.Name), tool.Name)
		if tool.Description != "" {
			b.WriteString(tool.Description + "\n\n")
		}

		b.WriteString("| Operation | Required arguments |\n|---|---|\n")
		for _, op := range tool.Operations {
			required := "-"
			if len(op.Required) > 0 {
				required = "`" + strings.Join(op.Required, "`, `") + "`"
			}
			fmt.Fprintf(&b, "| `%s` | %s |\n", op.Name, required)
		}
		b.WriteString("\n")

		if tool.Schema == nil {
			continue
		}
		names := make([]string, 0, len(tool.Schema.Properties))
		for name := range tool.Schema.Properties {
			if name != "operation" {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		b.WriteString("| Argument | Type | Description |\n|---|---|---|\n")
		for _, name := range names {
			prop := tool.Schema.Properties[name].Value
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", name, typeOf(prop), escapeCell(prop.Description))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// HTML renders the Markdown catalogue as a standalone page
func HTML(tools []*schema.Tool) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))

	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(tools)), &body); err != nil {
		return nil, fmt.Errorf("failed to render catalogue: %w", err)
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n",
		html.EscapeString("Letta MCP tools"))
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

func typeOf(s *openapi3.Schema) string {
	if s == nil || s.Type == nil || len(*s.Type) == 0 {
		return "any"
	}
	t := (*s.Type)[0]
	if t == openapi3.TypeArray && s.Items != nil && s.Items.Value != nil {
		return "array of " + typeOf(s.Items.Value)
	}
	if len(s.Enum) > 0 {
		values := make([]string, len(s.Enum))
		for i, v := range s.Enum {
			values[i] = fmt.Sprint(v)
		}
		return t + " (" + strings.Join(values, ", ") + ")"
	}
	return t
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

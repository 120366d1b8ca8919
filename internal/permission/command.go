package permission

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// safeCommands are commands that bypass permission and consent checks.
// Single-token entries match on the command name alone; multi-token
// entries require the whole invocation to match.
var safeCommands = map[string]bool{
	"dir":      true,
	"ls":       true,
	"echo":     true,
	"cd":       true,
	"pwd":      true,
	"type":     true,
	"cat":      true,
	"more":     true,
	"date":     true,
	"time":     true,
	"whoami":   true,
	"hostname": true,
	"ver":      true,
}

// safeInvocations are exact command lines that are safe even though their
// command name alone is not.
var safeInvocations = map[string]bool{
	"python --version": true,
	"pip --version":    true,
}

// Command is a single parsed shell command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a shell command line into its constituent commands
// (pipelines, && and ; chains yield one entry each).
func ParseCommand(command string) ([]Command, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

// extractCommand extracts the command name and arguments from a CallExpr.
func extractCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &Command{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		cmd.Args = append(cmd.Args, wordToString(arg))
	}
	return cmd
}

// wordToString flattens a syntax.Word to a string.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			// Command substitution is opaque; mark as dynamic.
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// FirstToken returns the command name of the first command in the line.
// On a parse failure it falls back to whitespace splitting so a grant key
// always exists.
func FirstToken(command string) string {
	commands, err := ParseCommand(command)
	if err == nil && len(commands) > 0 {
		return commands[0].Name
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// IsSafeCommand reports whether every command in the line is in the safe
// set. Commands with substitutions or unparseable lines are never safe.
func IsSafeCommand(command string) bool {
	trimmed := strings.Join(strings.Fields(command), " ")
	if safeInvocations[strings.ToLower(trimmed)] {
		return true
	}

	commands, err := ParseCommand(command)
	if err != nil || len(commands) == 0 {
		return false
	}
	for _, cmd := range commands {
		if !safeCommands[strings.ToLower(cmd.Name)] {
			return false
		}
	}
	return true
}

// SafeCommands returns the built-in safe command names.
func SafeCommands() []string {
	names := make([]string, 0, len(safeCommands))
	for name := range safeCommands {
		names = append(names, name)
	}
	return names
}

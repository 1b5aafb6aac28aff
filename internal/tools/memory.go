package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const memoryMaxSize = 256 << 10

// MemoryTool reads and appends to the assistant's long-term memory file,
// a plain markdown document the user can open and edit themselves.
type MemoryTool struct {
	path string
}

func NewMemoryTool(path string) *MemoryTool {
	return &MemoryTool{path: path}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return "Read or append to your long-term memory file. Append durable facts about the user (preferences, names, recurring context); read it to recall them."
}

func (t *MemoryTool) Schema() ParamSchema {
	return ParamSchema{
		Type: "object",
		Properties: map[string]*Prop{
			"action": {
				Type:        "string",
				Description: "read returns the whole file, append adds a note",
				Enum:        []string{"read", "append"},
			},
			"note": {
				Type:        "string",
				Description: "The note to append (required for append)",
			},
		},
		Required: []string{"action"},
	}
}

func (t *MemoryTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	switch args["action"].(string) {
	case "read":
		return t.read()
	case "append":
		note, _ := args["note"].(string)
		return t.append(note)
	default:
		return Fail("action must be read or append"), nil
	}
}

func (t *MemoryTool) read() (*Result, error) {
	content, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return Ok("Memory is empty."), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory file: %w", err)
	}
	if len(content) > memoryMaxSize {
		content = content[len(content)-memoryMaxSize:]
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return Ok("Memory is empty."), nil
	}
	return Ok(text), nil
}

func (t *MemoryTool) append(note string) (*Result, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return Fail("note is required for append"), nil
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory directory: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open memory file: %w", err)
	}
	defer f.Close()

	entry := fmt.Sprintf("- %s %s\n", time.Now().Format("2006-01-02"), note)
	if _, err := f.WriteString(entry); err != nil {
		return nil, fmt.Errorf("append to memory file: %w", err)
	}
	return Ok("Noted."), nil
}

// ReadMemory returns the memory file's contents for prompt assembly.
// A missing file is simply an empty memory.
func ReadMemory(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(content))
}

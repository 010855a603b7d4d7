package engine

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jcqin2022/AIAssistant/internal/util"
)

//go:embed prompts/*.md
var embedded embed.FS

// Prompt document names.
const (
	PromptManager   = "manager"
	PromptScheduler = "scheduler"
	PromptPC        = "pc"
	PromptCluster   = "cluster"

	StageAnalyzePrompt = "analyze"
	StageReviewPrompt  = "review"
	StageDeliverPrompt = "deliver"
)

// Prompts holds the role instructions (<name>_prompt.md), role contexts
// (<name>_context.md) and stage templates (<stage>.md).
type Prompts struct {
	files map[string]string
}

// DefaultPrompts returns the embedded prompt set.
func DefaultPrompts() *Prompts {
	p := &Prompts{files: map[string]string{}}
	entries, _ := fs.ReadDir(embedded, "prompts")
	for _, e := range entries {
		data, err := embedded.ReadFile("prompts/" + e.Name())
		if err != nil {
			continue
		}
		p.files[e.Name()] = string(data)
	}
	return p
}

// LoadPrompts returns the embedded prompt set with every *.md file found in
// dir layered on top. An empty dir yields the defaults.
func LoadPrompts(dir string) (*Prompts, error) {
	p := DefaultPrompts()
	if dir == "" {
		return p, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read prompts dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", e.Name(), err)
		}
		p.files[e.Name()] = string(data)
	}
	return p, nil
}

// Set overrides one prompt document, e.g. Set("manager_prompt.md", text).
func (p *Prompts) Set(file, text string) {
	p.files[file] = text
}

// Instruction returns the role instruction for name.
func (p *Prompts) Instruction(name string) string {
	return strings.TrimSpace(p.files[name+"_prompt.md"])
}

// Context returns the role context for name.
func (p *Prompts) Context(name string) string {
	return strings.TrimSpace(p.files[name+"_context.md"])
}

// Render executes the stage template with data.
func (p *Prompts) Render(stage string, data any) (string, error) {
	text, ok := p.files[stage+".md"]
	if !ok {
		return "", errors.New("unknown stage prompt: " + stage)
	}
	out, err := util.RenderTemplate(text, data)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", stage, err)
	}
	return strings.TrimSpace(out), nil
}

type analyzeData struct {
	Question       string
	MarkerConfirm  string
	MarkerTaskList string
	MarkerTaskItem string
}

type reviewData struct {
	Question string
	TaskText string
	Results  string
}

type deliverData struct {
	Question string
	Results  string
	Feedback string
}

package trigger

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Workflow is the subset of a GitHub Actions workflow file the importer
// cares about: the trigger block and the shape of each job.
type Workflow struct {
	Name string         `yaml:"name"`
	On   TriggerSpec    `yaml:"on"`
	Jobs map[string]Job `yaml:"jobs"`
}

// Job carries the fields needed to reconstruct a step graph.
type Job struct {
	Name  string     `yaml:"name"`
	Needs StringList `yaml:"needs"`
	If    string     `yaml:"if"`
	Steps []Step     `yaml:"steps"`
}

// Step is one workflow step. Only `run` steps translate into pipeline
// steps; `uses` steps are surfaced so the importer can flag them.
type Step struct {
	Name             string `yaml:"name"`
	Run              string `yaml:"run"`
	Uses             string `yaml:"uses"`
	WorkingDirectory string `yaml:"working-directory"`
}

// StringList decodes a YAML value that may be a single scalar or a sequence
// of scalars. `needs: build` and `needs: [build, lint]` both occur in the
// wild.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*l = StringList(ss)
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or list of strings", node.Line)
	}
}

// TriggerSpec decodes the `on:` block in any of its three forms: a single
// event name, a list of event names, or a mapping with per-event filters.
type TriggerSpec struct {
	Rules Rules
}

func (t *TriggerSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var kind string
		if err := node.Decode(&kind); err != nil {
			return err
		}
		t.enable(kind)
		return nil
	case yaml.SequenceNode:
		var kinds []string
		if err := node.Decode(&kinds); err != nil {
			return err
		}
		for _, kind := range kinds {
			t.enable(kind)
		}
		return nil
	case yaml.MappingNode:
		return t.decodeMapping(node)
	default:
		return fmt.Errorf("line %d: unsupported `on` block", node.Line)
	}
}

func (t *TriggerSpec) enable(kind string) {
	switch kind {
	case "push":
		t.Rules.Push = &PushRules{}
	case "pull_request":
		t.Rules.PullRequest = &PullRequestRules{}
	}
	// Other event kinds (workflow_dispatch, schedule, ...) have no local
	// equivalent and are dropped.
}

func (t *TriggerSpec) decodeMapping(node *yaml.Node) error {
	// Walk key/value pairs directly so that a filterless `push:` (null
	// body) still registers the event kind.
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		switch key {
		case "push":
			rules := &PushRules{}
			if val.Kind == yaml.MappingNode {
				var m struct {
					Branches StringList `yaml:"branches"`
					Tags     StringList `yaml:"tags"`
				}
				if err := val.Decode(&m); err != nil {
					return fmt.Errorf("decoding push trigger: %w", err)
				}
				rules.Branches = m.Branches
				rules.Tags = m.Tags
			}
			t.Rules.Push = rules
		case "pull_request":
			rules := &PullRequestRules{}
			if val.Kind == yaml.MappingNode {
				var m struct {
					Branches StringList `yaml:"branches"`
				}
				if err := val.Decode(&m); err != nil {
					return fmt.Errorf("decoding pull_request trigger: %w", err)
				}
				rules.Branches = m.Branches
			}
			t.Rules.PullRequest = rules
		}
	}
	return nil
}

// ParseWorkflow decodes a workflow document.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing workflow: %w", err)
	}
	return &w, nil
}

// LoadWorkflow reads and decodes a workflow file.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow: %w", err)
	}
	return ParseWorkflow(data)
}

// TriggerRules exposes the decoded rules.
func (w *Workflow) TriggerRules() Rules {
	return w.On.Rules
}

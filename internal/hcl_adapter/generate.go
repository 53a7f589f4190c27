package hcl_adapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/gofecto/gofecto/internal/trigger"
)

// GenerateStarter renders a starter manifest from an imported CI workflow:
// a project block, the translated trigger rules, and one exec step per shell
// command, chained to mirror the job graph. Steps that call prepackaged
// actions have no local equivalent and are surfaced as comments for manual
// porting.
func GenerateStarter(wf *trigger.Workflow, projectName string) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	project := body.AppendNewBlock("project", nil).Body()
	project.SetAttributeValue("name", cty.StringVal(projectName))
	body.AppendNewline()

	writeOn(body, wf.TriggerRules())

	jobNames := make([]string, 0, len(wf.Jobs))
	for name := range wf.Jobs {
		jobNames = append(jobNames, name)
	}
	sort.Strings(jobNames)

	// Name every runnable step up front so depends_on can reference jobs
	// that appear later in the file.
	names := newNameSet()
	stepNames := make(map[string][]string, len(wf.Jobs))
	for _, jobName := range jobNames {
		job := wf.Jobs[jobName]
		for i, step := range job.Steps {
			if step.Run == "" {
				continue
			}
			stepNames[jobName] = append(stepNames[jobName], names.claim(stepLabel(jobName, step, i)))
		}
	}
	lastStep := make(map[string]string, len(stepNames))
	for jobName, labels := range stepNames {
		lastStep[jobName] = labels[len(labels)-1]
	}

	for _, jobName := range jobNames {
		job := wf.Jobs[jobName]

		if job.If != "" {
			appendComment(body, fmt.Sprintf("job %q ran under condition %q; translate it into a when clause", jobName, job.If))
		}

		var jobDeps []string
		for _, needed := range job.Needs {
			if last, ok := lastStep[needed]; ok {
				jobDeps = append(jobDeps, "exec."+last)
			}
		}

		idx := 0
		var prev string
		for _, step := range job.Steps {
			if step.Run == "" {
				if step.Uses != "" {
					appendComment(body, fmt.Sprintf("step %q uses %s, which has no local equivalent; port it by hand", stepTitle(step), step.Uses))
				}
				continue
			}

			label := stepNames[jobName][idx]
			idx++

			block := body.AppendNewBlock("step", []string{"exec", label}).Body()
			deps := jobDeps
			if prev != "" {
				deps = []string{"exec." + prev}
			}
			if len(deps) > 0 {
				vals := make([]cty.Value, 0, len(deps))
				for _, d := range deps {
					vals = append(vals, cty.StringVal(d))
				}
				block.SetAttributeValue("depends_on", cty.ListVal(vals))
			}

			args := block.AppendNewBlock("arguments", nil).Body()
			args.SetAttributeValue("command", cty.StringVal(step.Run))
			if step.WorkingDirectory != "" {
				args.SetAttributeValue("dir", cty.StringVal(step.WorkingDirectory))
			}

			body.AppendNewline()
			prev = label
		}
	}

	return f.Bytes()
}

// writeOn renders the trigger rules as an on block. Rules with neither event
// kind produce no block, leaving the stock delivery rules in force.
func writeOn(body *hclwrite.Body, rules trigger.Rules) {
	if rules.Push == nil && rules.PullRequest == nil {
		return
	}
	on := body.AppendNewBlock("on", nil).Body()
	if rules.Push != nil {
		push := on.AppendNewBlock("push", nil).Body()
		if len(rules.Push.Branches) > 0 {
			push.SetAttributeValue("branches", stringList(rules.Push.Branches))
		}
		if len(rules.Push.Tags) > 0 {
			push.SetAttributeValue("tags", stringList(rules.Push.Tags))
		}
	}
	if rules.PullRequest != nil {
		pr := on.AppendNewBlock("pull_request", nil).Body()
		if len(rules.PullRequest.Branches) > 0 {
			pr.SetAttributeValue("branches", stringList(rules.PullRequest.Branches))
		}
	}
	body.AppendNewline()
}

func stringList(ss []string) cty.Value {
	vals := make([]cty.Value, 0, len(ss))
	for _, s := range ss {
		vals = append(vals, cty.StringVal(s))
	}
	return cty.ListVal(vals)
}

func appendComment(body *hclwrite.Body, text string) {
	body.AppendUnstructuredTokens(hclwrite.Tokens{{
		Type:  hclsyntax.TokenComment,
		Bytes: []byte("# " + text + "\n"),
	}})
	body.AppendNewline()
}

// stepLabel picks a label for one run step: its name when given, otherwise
// the job name, with an ordinal when the job has several anonymous steps.
func stepLabel(jobName string, step trigger.Step, index int) string {
	if step.Name != "" {
		return sanitizeLabel(step.Name)
	}
	if index == 0 {
		return sanitizeLabel(jobName)
	}
	return sanitizeLabel(fmt.Sprintf("%s-%d", jobName, index+1))
}

func stepTitle(step trigger.Step) string {
	if step.Name != "" {
		return step.Name
	}
	return step.Uses
}

// sanitizeLabel reduces a human title to a referenceable step name.
func sanitizeLabel(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	label := strings.TrimRight(b.String(), "-")
	if label == "" {
		return "step"
	}
	return label
}

// nameSet hands out unique labels, suffixing duplicates.
type nameSet map[string]int

func newNameSet() nameSet { return make(nameSet) }

func (n nameSet) claim(label string) string {
	n[label]++
	if n[label] == 1 {
		return label
	}
	return fmt.Sprintf("%s-%d", label, n[label])
}

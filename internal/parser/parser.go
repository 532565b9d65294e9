// Package parser turns raw process definition payloads into ordered step lists.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/relvacode/iso8601"
	"gitlab.com/grcflow/grcflow/common/logx"
	"gitlab.com/grcflow/grcflow/model"
)

// defaultPriority is assumed when a step declares none.
const defaultPriority = 2

// flatStep is the fallback flat-list wire shape for definition steps.
type flatStep struct {
	Id             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	StepNumber     int    `json:"stepNumber"`
	Assignee       string `json:"assignee"`
	DaysToComplete int    `json:"daysToComplete"`
	Priority       int    `json:"priority"`
	Description    string `json:"description"`
}

// Parse extracts the ordered step list from a definition.  The structured XML
// payload is preferred; if it is absent or yields nothing the flat JSON list
// is used instead.  Parse never fails: a malformed payload degrades to an
// empty step list and is reported through the log, so a bad definition starts
// an instance with zero tasks rather than blocking it.
func Parse(ctx context.Context, def *model.ProcessDefinition) []model.ProcessStep {
	ctx, log := logx.ContextWith(ctx, "parser.Parse")

	steps := parseStructured(ctx, def.RawDefinition)
	if len(steps) == 0 {
		steps = parseFlat(ctx, def.StepsJson)
	}
	if len(steps) == 0 {
		log.Warn("definition yielded no steps", "definition", def.Id)
		return []model.ProcessStep{}
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Sequence < steps[j].Sequence })
	return steps
}

func parseStructured(ctx context.Context, raw []byte) []model.ProcessStep {
	if len(raw) == 0 {
		return nil
	}
	log := logx.FromContext(ctx)
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		log.Error("parse structured definition", "error", err)
		return nil
	}
	nodes := xmlquery.Find(doc, "//step")
	steps := make([]model.ProcessStep, 0, len(nodes))
	for _, n := range nodes {
		seq, err := strconv.Atoi(n.SelectAttr("sequence"))
		if err != nil {
			log.Error("step has no usable sequence", "step", n.SelectAttr("id"), "error", err)
			continue
		}
		step := model.ProcessStep{
			Id:       n.SelectAttr("id"),
			Name:     n.SelectAttr("name"),
			Kind:     stepKind(n.SelectAttr("kind")),
			Sequence: seq,
			Priority: defaultPriority,
		}
		if p := n.SelectAttr("priority"); p != "" {
			if v, err := strconv.Atoi(p); err == nil {
				step.Priority = v
			}
		}
		if d := n.SelectAttr("dueInDays"); d != "" {
			if v, err := strconv.Atoi(d); err == nil {
				step.DueDateOffsetDays = v
			}
		}
		if a := xmlquery.FindOne(n, "assignee"); a != nil {
			step.AssigneeRule = strings.TrimSpace(a.InnerText())
		}
		if d := xmlquery.FindOne(n, "description"); d != nil {
			step.Description = strings.TrimSpace(d.InnerText())
		}
		steps = append(steps, step)
	}
	return steps
}

func parseFlat(ctx context.Context, raw []byte) []model.ProcessStep {
	if len(raw) == 0 {
		return nil
	}
	log := logx.FromContext(ctx)
	var flat []flatStep
	if err := json.Unmarshal(raw, &flat); err != nil {
		log.Error("parse flat definition steps", "error", err)
		return nil
	}
	steps := make([]model.ProcessStep, 0, len(flat))
	for _, f := range flat {
		priority := f.Priority
		if priority == 0 {
			priority = defaultPriority
		}
		steps = append(steps, model.ProcessStep{
			Id:                f.Id,
			Name:              f.Name,
			Kind:              stepKind(f.Type),
			Sequence:          f.StepNumber,
			AssigneeRule:      f.Assignee,
			DueDateOffsetDays: f.DaysToComplete,
			Priority:          priority,
			Description:       f.Description,
		})
	}
	return steps
}

func stepKind(s string) model.StepKind {
	switch strings.ToLower(s) {
	case "start":
		return model.StepKindStart
	case "end":
		return model.StepKindEnd
	default:
		return model.StepKindTask
	}
}

// DefinitionMeta carries definition-level attributes recoverable from a
// structured payload.
type DefinitionMeta struct {
	Name            string
	DefaultAssignee string
	Created         *time.Time
}

// Meta extracts definition-level attributes from a structured payload.  It is
// best-effort in the same way Parse is.
func Meta(ctx context.Context, raw []byte) DefinitionMeta {
	meta := DefinitionMeta{}
	if len(raw) == 0 {
		return meta
	}
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return meta
	}
	if p := xmlquery.FindOne(doc, "//process"); p != nil {
		meta.Name = p.SelectAttr("name")
		meta.DefaultAssignee = p.SelectAttr("defaultAssignee")
		if c := p.SelectAttr("created"); c != "" {
			if t, err := iso8601.ParseString(c); err == nil {
				meta.Created = &t
			}
		}
	}
	return meta
}

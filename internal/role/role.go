// Package role defines the fixed personas that condition each model call.
package role

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor names a persona and carries its system instruction.
// Descriptors are values; once built they are only ever copied.
type Descriptor struct {
	Name        string `yaml:"name"`
	Instruction string `yaml:"instruction"`
}

// Set holds the four roles used by one pipeline.
type Set struct {
	Visionary    Descriptor `yaml:"visionary"`
	Investigator Descriptor `yaml:"investigator"`
	Bard         Descriptor `yaml:"bard"`
	Critic       Descriptor `yaml:"critic"`
}

// Defaults returns the built-in role set.
func Defaults() Set {
	return Set{
		Visionary: Descriptor{
			Name:        "Visionary",
			Instruction: "You are The Visionary. Analyze images and list 3 specific, vivid visual details that look spooky or mysterious.",
		},
		Investigator: Descriptor{
			Name: "Investigator",
			Instruction: "You are The Investigator. You MUST use Google Search to find verified historical facts. " +
				"Focus on: dark history, crimes, local legends, and specific dates. " +
				"Do NOT make up facts. If you can't find info, state that.",
		},
		Bard: Descriptor{
			Name:        "Bard",
			Instruction: "You are The Local Mythmaker. Write a short 'Micro-Myth' (max 120 words) weaving verified history into a spooky narrative and first person to the user.",
		},
		Critic: Descriptor{
			Name: "Critic",
			Instruction: "You are the Editor. Evaluate the myth for spookiness and historical accuracy integration. " +
				"Return ONLY a JSON object: {'score': int (1-10), 'feedback': 'string'}. " +
				"Do not output markdown.",
		},
	}
}

// overrideFile is the on-disk shape accepted by LoadFile. Keys are the
// lower-cased default role names.
type overrideFile map[string]Descriptor

// LoadFile reads role overrides from a YAML file and merges them over the
// defaults. A role missing from the file keeps its default; a partial entry
// only replaces the fields it sets.
//
//	bard:
//	  instruction: "Write a limerick instead."
//	critic:
//	  name: Editor
func LoadFile(path string) (Set, error) {
	set := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("read roles file: %w", err)
	}

	var overrides overrideFile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return set, fmt.Errorf("parse roles file: %w", err)
	}

	for key, o := range overrides {
		var target *Descriptor
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "visionary":
			target = &set.Visionary
		case "investigator":
			target = &set.Investigator
		case "bard":
			target = &set.Bard
		case "critic":
			target = &set.Critic
		default:
			return Defaults(), fmt.Errorf("unknown role %q in %s", key, path)
		}

		if o.Name != "" {
			target.Name = o.Name
		}
		if o.Instruction != "" {
			target.Instruction = o.Instruction
		}
	}

	return set, nil
}

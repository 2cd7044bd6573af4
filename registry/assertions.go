package registry

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/flowcheck/flowcheck/types"
)

// parseAssertion turns one YAML assertion entry into assertions. Most
// entries yield exactly one; a bot_uttered block yields one assertion per
// declared expectation so each gets its own verdict.
func parseAssertion(node *yaml.Node) ([]types.Assertion, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return nil, fmt.Errorf("assertion must be a single-key mapping")
	}
	key := node.Content[0].Value
	value := node.Content[1]

	switch key {
	case "flow_started", "flow_completed", "flow_cancelled":
		return parseFlowAssertion(key, value)
	case "slot_was_set":
		return parseSlotWasSet(value)
	case "slot_was_not_set":
		return parseSlotWasNotSet(value)
	case "bot_uttered":
		return parseBotUttered(value)
	case "pattern_clarification_triggered":
		return parsePatternClarification(value)
	default:
		return nil, fmt.Errorf("unknown assertion kind %q", key)
	}
}

func parseFlowAssertion(key string, value *yaml.Node) ([]types.Assertion, error) {
	var flowID string
	if err := value.Decode(&flowID); err != nil || flowID == "" {
		return nil, fmt.Errorf("%s expects a flow id", key)
	}
	kind := map[string]types.AssertionKind{
		"flow_started":   types.AssertFlowStarted,
		"flow_completed": types.AssertFlowCompleted,
		"flow_cancelled": types.AssertFlowCancelled,
	}[key]
	return []types.Assertion{{Kind: kind, FlowID: flowID}}, nil
}

// parseSlotWasSet accepts a bare slot name, a sequence of names, or a
// sequence of {name, value} mappings. A present value key asserts the exact
// value, including an explicit null for "slot was reset".
func parseSlotWasSet(value *yaml.Node) ([]types.Assertion, error) {
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil || name == "" {
			return nil, fmt.Errorf("slot_was_set expects a slot name")
		}
		return []types.Assertion{{Kind: types.AssertSlotWasSet, SlotName: name}}, nil

	case yaml.SequenceNode:
		var assertions []types.Assertion
		for _, item := range value.Content {
			a, err := parseSlotEntry(item)
			if err != nil {
				return nil, err
			}
			assertions = append(assertions, a)
		}
		if len(assertions) == 0 {
			return nil, fmt.Errorf("slot_was_set list is empty")
		}
		return assertions, nil

	default:
		return nil, fmt.Errorf("slot_was_set expects a slot name or a list of slots")
	}
}

func parseSlotEntry(item *yaml.Node) (types.Assertion, error) {
	a := types.Assertion{Kind: types.AssertSlotWasSet}

	if item.Kind == yaml.ScalarNode {
		if err := item.Decode(&a.SlotName); err != nil || a.SlotName == "" {
			return a, fmt.Errorf("slot_was_set entry expects a slot name")
		}
		return a, nil
	}
	if item.Kind != yaml.MappingNode {
		return a, fmt.Errorf("slot_was_set entry must be a name or a {name, value} mapping")
	}

	for i := 0; i+1 < len(item.Content); i += 2 {
		k, v := item.Content[i].Value, item.Content[i+1]
		switch k {
		case "name":
			if err := v.Decode(&a.SlotName); err != nil {
				return a, fmt.Errorf("slot name: %w", err)
			}
		case "value":
			if err := v.Decode(&a.SlotValue); err != nil {
				return a, fmt.Errorf("slot value: %w", err)
			}
			a.HasSlotValue = true
		default:
			return a, fmt.Errorf("unknown slot_was_set field %q", k)
		}
	}
	if a.SlotName == "" {
		return a, fmt.Errorf("slot_was_set entry is missing a name")
	}
	return a, nil
}

func parseSlotWasNotSet(value *yaml.Node) ([]types.Assertion, error) {
	var names []string
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil || name == "" {
			return nil, fmt.Errorf("slot_was_not_set expects a slot name")
		}
		names = []string{name}
	case yaml.SequenceNode:
		if err := value.Decode(&names); err != nil || len(names) == 0 {
			return nil, fmt.Errorf("slot_was_not_set expects slot names")
		}
	default:
		return nil, fmt.Errorf("slot_was_not_set expects a slot name or a list of names")
	}

	assertions := make([]types.Assertion, 0, len(names))
	for _, name := range names {
		assertions = append(assertions, types.Assertion{Kind: types.AssertSlotWasNotSet, SlotName: name})
	}
	return assertions, nil
}

type botUtteredDoc struct {
	TextMatches   string         `yaml:"text_matches"`
	Response      string         `yaml:"response"`
	Buttons       []types.Button `yaml:"buttons"`
	ButtonsSubset bool           `yaml:"buttons_subset"`
}

func parseBotUttered(value *yaml.Node) ([]types.Assertion, error) {
	var doc botUtteredDoc
	if err := value.Decode(&doc); err != nil {
		return nil, fmt.Errorf("bot_uttered: %w", err)
	}

	var assertions []types.Assertion
	if doc.TextMatches != "" {
		re, err := regexp.Compile(doc.TextMatches)
		if err != nil {
			return nil, fmt.Errorf("bot_uttered text_matches %q: %w", doc.TextMatches, err)
		}
		assertions = append(assertions, types.Assertion{Kind: types.AssertBotUtteredTextMatches, TextPattern: re})
	}
	if doc.Response != "" {
		assertions = append(assertions, types.Assertion{Kind: types.AssertBotUtteredResponseIs, ResponseName: doc.Response})
	}
	if len(doc.Buttons) > 0 {
		assertions = append(assertions, types.Assertion{
			Kind:          types.AssertButtonsRendered,
			Buttons:       doc.Buttons,
			ButtonsSubset: doc.ButtonsSubset,
		})
	}
	if len(assertions) == 0 {
		return nil, fmt.Errorf("bot_uttered declares no expectation")
	}
	return assertions, nil
}

func parsePatternClarification(value *yaml.Node) ([]types.Assertion, error) {
	a := types.Assertion{Kind: types.AssertPatternClarificationTriggered}
	if value.Kind == yaml.SequenceNode {
		if err := value.Decode(&a.CandidateFlows); err != nil {
			return nil, fmt.Errorf("pattern_clarification_triggered: %w", err)
		}
	} else if !(value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
		return nil, fmt.Errorf("pattern_clarification_triggered expects a flow list or nothing")
	}
	return []types.Assertion{a}, nil
}

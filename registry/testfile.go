package registry

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/flowcheck/flowcheck/stubs"
	"github.com/flowcheck/flowcheck/types"
)

// testFileDoc is the YAML shape of a test document.
type testFileDoc struct {
	Fixtures          map[string]any              `yaml:"fixtures"`
	StubCustomActions map[string]types.StubResult `yaml:"stub_custom_actions"`
	TestCases         []testCaseDoc               `yaml:"test_cases"`
}

type testCaseDoc struct {
	Name                  string                      `yaml:"test_case"`
	AssertionOrderEnabled bool                        `yaml:"assertion_order_enabled"`
	Fixtures              map[string]any              `yaml:"fixtures"`
	StubCustomActions     map[string]types.StubResult `yaml:"stub_custom_actions"`
	Steps                 []stepDoc                   `yaml:"steps"`
}

// stepDoc is either a user step with assertions or a legacy bot/utter step.
type stepDoc struct {
	User       string      `yaml:"user"`
	Bot        string      `yaml:"bot"`
	Utter      string      `yaml:"utter"`
	Assertions []yaml.Node `yaml:"assertions"`
}

// LoadTestFile parses one test document. File-level and case-level stub
// bindings are loaded into the returned file's stub registry; duplicate
// bindings at the same scope are rejected here, at load time.
func LoadTestFile(path string) (*TestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test file: %w", err)
	}

	var doc testFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing test file: %w", err)
	}

	file := &TestFile{Path: path, Stubs: stubs.NewRegistry()}
	for name, stub := range doc.StubCustomActions {
		if err := file.Stubs.BindFile(name, stub); err != nil {
			return nil, err
		}
	}

	seenNames := make(map[string]bool)
	for i, caseDoc := range doc.TestCases {
		if caseDoc.Name == "" {
			return nil, fmt.Errorf("test case %d has no test_case name", i)
		}
		if seenNames[caseDoc.Name] {
			return nil, fmt.Errorf("duplicate test case name %q", caseDoc.Name)
		}
		seenNames[caseDoc.Name] = true

		tc, err := buildTestCase(path, caseDoc, doc.Fixtures)
		if err != nil {
			return nil, fmt.Errorf("test case %q: %w", caseDoc.Name, err)
		}
		for name, stub := range caseDoc.StubCustomActions {
			if err := file.Stubs.BindCase(caseDoc.Name, name, stub); err != nil {
				return nil, err
			}
		}
		file.Cases = append(file.Cases, tc)
	}
	return file, nil
}

func buildTestCase(path string, doc testCaseDoc, fileFixtures map[string]any) (types.TestCase, error) {
	tc := types.TestCase{
		ID:           doc.Name,
		File:         path,
		OrderEnabled: doc.AssertionOrderEnabled,
		Fixtures:     mergeFixtures(fileFixtures, doc.Fixtures),
	}

	for i, step := range doc.Steps {
		switch {
		case step.User != "":
			turn := types.Turn{User: step.User}
			for _, node := range step.Assertions {
				parsed, err := parseAssertion(&node)
				if err != nil {
					return tc, fmt.Errorf("step %d: %w", i, err)
				}
				turn.Assertions = append(turn.Assertions, parsed...)
			}
			tc.Turns = append(tc.Turns, turn)

		case step.Bot != "":
			// Legacy format: a bot step checks the previous user turn's
			// utterance text verbatim.
			a, err := literalTextAssertion(step.Bot)
			if err != nil {
				return tc, fmt.Errorf("step %d: %w", i, err)
			}
			if err := appendToLastTurn(&tc, a); err != nil {
				return tc, fmt.Errorf("step %d: %w", i, err)
			}

		case step.Utter != "":
			a := types.Assertion{Kind: types.AssertBotUtteredResponseIs, ResponseName: step.Utter}
			if err := appendToLastTurn(&tc, a); err != nil {
				return tc, fmt.Errorf("step %d: %w", i, err)
			}

		default:
			return tc, fmt.Errorf("step %d is neither a user, bot nor utter step", i)
		}
	}

	if len(tc.Turns) == 0 {
		return tc, fmt.Errorf("no steps declared")
	}
	return tc, nil
}

func appendToLastTurn(tc *types.TestCase, a types.Assertion) error {
	if len(tc.Turns) == 0 {
		return fmt.Errorf("bot/utter step without a preceding user step")
	}
	last := &tc.Turns[len(tc.Turns)-1]
	last.Assertions = append(last.Assertions, a)
	return nil
}

func literalTextAssertion(text string) (types.Assertion, error) {
	re, err := regexp.Compile("^" + regexp.QuoteMeta(text) + "$")
	if err != nil {
		return types.Assertion{}, fmt.Errorf("compiling literal utterance %q: %w", text, err)
	}
	return types.Assertion{Kind: types.AssertBotUtteredTextMatches, TextPattern: re}, nil
}

func mergeFixtures(file, tc map[string]any) map[string]any {
	if len(file) == 0 && len(tc) == 0 {
		return nil
	}
	merged := make(map[string]any, len(file)+len(tc))
	for k, v := range file {
		merged[k] = v
	}
	for k, v := range tc {
		merged[k] = v
	}
	return merged
}

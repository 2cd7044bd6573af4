// Package stubs resolves custom-action invocations to canned results during
// a test run.
package stubs

import (
	"fmt"

	"github.com/flowcheck/flowcheck/types"
)

// ScopeSeparator joins a test case id and an action name into a case-scoped
// binding key.
const ScopeSeparator = "::"

// Registry holds the stub bindings for one test file. Bindings are loaded
// once, before evaluation starts, and the registry is read-only afterwards,
// so concurrent lookups from parallel test cases need no locking.
type Registry struct {
	fileScope map[string]types.StubResult
	caseScope map[string]types.StubResult
}

// NewRegistry creates an empty stub registry.
func NewRegistry() *Registry {
	return &Registry{
		fileScope: make(map[string]types.StubResult),
		caseScope: make(map[string]types.StubResult),
	}
}

// BindFile registers a file-level stub for the given action name, applying
// to every test case in the file. Duplicate bindings at the same scope are a
// load-time error.
func (r *Registry) BindFile(actionName string, result types.StubResult) error {
	if _, exists := r.fileScope[actionName]; exists {
		return fmt.Errorf("duplicate file-level stub for action %q", actionName)
	}
	r.fileScope[actionName] = result
	return nil
}

// BindCase registers a case-level stub, applying only within that test case.
func (r *Registry) BindCase(caseID, actionName string, result types.StubResult) error {
	key := caseKey(caseID, actionName)
	if _, exists := r.caseScope[key]; exists {
		return fmt.Errorf("duplicate stub for action %q in test case %q", actionName, caseID)
	}
	r.caseScope[key] = result
	return nil
}

// Resolve looks up the stub for (testCaseID, actionName). Case-level
// bindings take precedence over file-level bindings for the same action
// name. The second return is false when the action is not stubbed at either
// scope, signaling the caller to fall through to the real custom action.
// Resolution is a pure lookup: the same inputs always yield the same output
// for the duration of a run.
func (r *Registry) Resolve(testCaseID, actionName string) (types.StubResult, bool) {
	if result, ok := r.caseScope[caseKey(testCaseID, actionName)]; ok {
		return result, true
	}
	if result, ok := r.fileScope[actionName]; ok {
		return result, true
	}
	return types.StubResult{}, false
}

// Len returns the number of bindings across both scopes.
func (r *Registry) Len() int {
	return len(r.fileScope) + len(r.caseScope)
}

func caseKey(caseID, actionName string) string {
	return caseID + ScopeSeparator + actionName
}

// Package macro models an automation program: named functions, each an ordered
// list of steps, plus the function currently selected for editing and running.
package macro

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultFunctionName names the function a new or empty program starts with
const DefaultFunctionName = "Default"

// Function is a named, ordered step list
type Function struct {
	Name  string
	Steps []Step
}

func (f *Function) clone() *Function {
	steps := make([]Step, len(f.Steps))
	for i, s := range f.Steps {
		steps[i] = s.Clone()
	}
	return &Function{Name: f.Name, Steps: steps}
}

// Program is a set of uniquely named functions plus the current one.
// At least one function always exists. Methods are safe for concurrent use.
type Program struct {
	mu        sync.RWMutex
	functions map[string]*Function
	order     []string
	current   string
}

// NewProgram returns a program holding a single empty function
func NewProgram() *Program {
	p := &Program{functions: make(map[string]*Function)}
	p.insert(&Function{Name: DefaultFunctionName})
	p.current = DefaultFunctionName
	return p
}

// newProgramFrom builds a program from ordered functions. Callers guarantee unique names.
func newProgramFrom(functions []*Function, current string) *Program {
	p := &Program{functions: make(map[string]*Function)}
	for _, f := range functions {
		p.insert(f)
	}
	if len(p.order) == 0 {
		p.insert(&Function{Name: DefaultFunctionName})
	}
	if _, ok := p.functions[current]; !ok {
		current = p.order[0]
	}
	p.current = current
	return p
}

func (p *Program) insert(f *Function) {
	p.functions[f.Name] = f
	p.order = append(p.order, f.Name)
}

// Names returns function names in creation order
func (p *Program) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// Current returns the name of the active function
func (p *Program) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Has reports whether a function exists
func (p *Program) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.functions[name]
	return ok
}

// Steps returns a copy of a function's step list
func (p *Program) Steps(name string) ([]Step, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.functions[name]
	if !ok {
		return nil, false
	}
	return f.clone().Steps, true
}

// Snapshot returns an independent deep copy. Later edits to p do not show in it.
func (p *Program) Snapshot() *Program {
	p.mu.RLock()
	defer p.mu.RUnlock()

	fns := make([]*Function, 0, len(p.order))
	for _, name := range p.order {
		fns = append(fns, p.functions[name].clone())
	}
	return newProgramFrom(fns, p.current)
}

// SetCurrent selects the active function
func (p *Program) SetCurrent(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.functions[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	p.current = name
	return nil
}

// CreateFunction adds an empty function and makes it current
func (p *Program) CreateFunction(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.functions[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	p.insert(&Function{Name: name})
	p.current = name
	return nil
}

// RenameFunction renames a function in place, keeping its position and steps.
// CallFunction steps that refer to the old name are left as they are.
func (p *Program) RenameFunction(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrInvalidName
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.functions[oldName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, oldName)
	}
	if newName == oldName {
		return nil
	}
	if _, taken := p.functions[newName]; taken {
		return fmt.Errorf("%w: %q", ErrDuplicateName, newName)
	}

	delete(p.functions, oldName)
	f.Name = newName
	p.functions[newName] = f
	for i, n := range p.order {
		if n == oldName {
			p.order[i] = newName
		}
	}
	if p.current == oldName {
		p.current = newName
	}
	return nil
}

// DeleteFunction removes a function. The last remaining function cannot be deleted.
// When the current function is removed the first remaining one becomes current.
func (p *Program) DeleteFunction(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.functions[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if len(p.functions) <= 1 {
		return ErrLastFunction
	}

	delete(p.functions, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	if p.current == name {
		p.current = p.order[0]
	}
	return nil
}

// active returns the current function; callers hold the write lock
func (p *Program) active() *Function {
	return p.functions[p.current]
}

// AddStep appends a step to the active function and returns its 1-based index
func (p *Program) AddStep(step Step) (int, error) {
	if err := step.Validate(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.active()
	f.Steps = append(f.Steps, step.Clone())
	return len(f.Steps), nil
}

// RemoveStep deletes the step at a 1-based index of the active function
func (p *Program) RemoveStep(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.active()
	if index < 1 || index > len(f.Steps) {
		return indexError(index, len(f.Steps))
	}
	f.Steps = append(f.Steps[:index-1], f.Steps[index:]...)
	return nil
}

// MoveStep moves the step at index by delta positions (negative moves up)
func (p *Program) MoveStep(index, delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.active()
	n := len(f.Steps)
	if index < 1 || index > n {
		return indexError(index, n)
	}
	to := index + delta
	if to < 1 || to > n {
		return indexError(to, n)
	}

	step := f.Steps[index-1]
	f.Steps = append(f.Steps[:index-1], f.Steps[index:]...)
	f.Steps = append(f.Steps[:to-1], append([]Step{step}, f.Steps[to-1:]...)...)
	return nil
}

// ReplaceStep overwrites the step at a 1-based index of the active function
func (p *Program) ReplaceStep(index int, step Step) error {
	if err := step.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.active()
	if index < 1 || index > len(f.Steps) {
		return indexError(index, len(f.Steps))
	}
	f.Steps[index-1] = step.Clone()
	return nil
}

// ClearSteps empties the active function
func (p *Program) ClearSteps() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active().Steps = nil
}

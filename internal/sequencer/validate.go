package sequencer

import "fmt"

// Validate checks a step list before anything is deployed. Every reference must
// name a step declared strictly earlier; libraries may only be linked if the
// referenced step is a library. The order itself is never changed.
func Validate(steps []Step) error {
	position := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			return &StepError{Step: fmt.Sprintf("#%d", i), Err: fmt.Errorf("%w: empty name", ErrInvalidStep)}
		}
		if k := s.kind(); k != KindContract && k != KindLibrary {
			return &StepError{Step: s.Name, Err: fmt.Errorf("%w: unknown kind %q", ErrInvalidStep, s.Kind)}
		}
		if _, dup := position[s.Name]; dup {
			return &StepError{Step: s.Name, Err: ErrDuplicateStep}
		}
		position[s.Name] = i
	}

	for i, s := range steps {
		for _, dep := range s.DependsOn() {
			if err := checkReference(position, i, s.Name, dep); err != nil {
				return &StepError{Step: s.Name, Err: err}
			}
		}
		for _, lib := range s.Libraries {
			if steps[position[lib]].kind() != KindLibrary {
				return &StepError{Step: s.Name, Err: fmt.Errorf("%w: %s", ErrNotLibrary, lib)}
			}
		}
	}
	return nil
}

func checkReference(position map[string]int, at int, name, dep string) error {
	if dep == name {
		return fmt.Errorf("%w: %s references itself", ErrCyclicDependency, name)
	}
	pos, ok := position[dep]
	if !ok {
		return fmt.Errorf("%w: %s is not a step", ErrUnresolvedDependency, dep)
	}
	if pos > at {
		return fmt.Errorf("%w: %s is declared after %s", ErrCyclicDependency, dep, name)
	}
	return nil
}

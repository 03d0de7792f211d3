package obfuscation

// Ownership classifies the object an expression evaluates to.
type Ownership uint8

const (
	// OwnershipUnknown means no rule applied.
	OwnershipUnknown Ownership = iota
	// OwnershipProject is an object of a project class.
	OwnershipProject
	// OwnershipExternal is an object from outside the project.
	OwnershipExternal
	// OwnershipLikelyLocal is probably a project object, without proof.
	OwnershipLikelyLocal
)

func (o Ownership) String() string {
	switch o {
	case OwnershipProject:
		return "project"
	case OwnershipExternal:
		return "external"
	case OwnershipLikelyLocal:
		return "likely_local"
	default:
		return "unknown"
	}
}

// scopes is a stack of name-to-ownership frames. Lookups search from the
// innermost frame outward.
type scopes struct {
	frames []map[string]Ownership
}

func (s *scopes) push() { s.frames = append(s.frames, map[string]Ownership{}) }

func (s *scopes) pop() { s.frames = s.frames[:len(s.frames)-1] }

// set records ownership for every name in the innermost frame. Empty names
// are skipped.
func (s *scopes) set(o Ownership, names ...string) {
	if len(s.frames) == 0 {
		s.push()
	}
	top := s.frames[len(s.frames)-1]
	for _, n := range names {
		if n != "" {
			top[n] = o
		}
	}
}

func (s *scopes) lookup(name string) (Ownership, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if o, ok := s.frames[i][name]; ok {
			return o, true
		}
	}
	return OwnershipUnknown, false
}

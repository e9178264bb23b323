package policy

// orderedSet is a string set that remembers insertion order
type orderedSet struct {
	items []string
	index map[string]struct{}
}

func newOrderedSet(items ...string) *orderedSet {
	s := &orderedSet{index: make(map[string]struct{}, len(items))}
	for _, item := range items {
		if item != "" {
			s.Add(item)
		}
	}
	return s
}

func (s *orderedSet) Has(item string) bool {
	_, ok := s.index[item]
	return ok
}

func (s *orderedSet) Add(item string) bool {
	if s.Has(item) {
		return false
	}
	s.index[item] = struct{}{}
	s.items = append(s.items, item)
	return true
}

func (s *orderedSet) Remove(item string) bool {
	if !s.Has(item) {
		return false
	}
	delete(s.index, item)
	for i, v := range s.items {
		if v == item {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return true
}

func (s *orderedSet) Len() int {
	return len(s.items)
}

// Items returns a copy safe to hand out
func (s *orderedSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

package decoder

// level is one open array or object of the current feature.
type level struct {
	table int
	array bool
	path  []string

	// index is the occurrence index of an object level.
	index int

	// indexes are the array indexes the level was opened with.
	indexes []int

	// parent is the parent tuple key an array level was opened for.
	parent string
}

// NestingStack holds the open levels, outermost first.
type NestingStack struct {
	levels []level
}

func (s *NestingStack) push(l level) {
	s.levels = append(s.levels, l)
}

func (s *NestingStack) pop() level {
	l := s.levels[len(s.levels)-1]
	s.levels = s.levels[:len(s.levels)-1]
	return l
}

// Len returns the number of open levels.
func (s *NestingStack) Len() int {
	return len(s.levels)
}

func (s *NestingStack) has(table int, array bool) bool {
	for _, l := range s.levels {
		if l.table == table && l.array == array {
			return true
		}
	}
	return false
}

func (s *NestingStack) reset() {
	s.levels = s.levels[:0]
}

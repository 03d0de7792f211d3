package pylang

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// AlphabeticName returns the i-th name of the bijective base-26 sequence
// a, b, ..., z, aa, ab, ..., az, ba, ...
func AlphabeticName(i int) string {
	var buf []byte
	for {
		buf = append(buf, alphabet[i%26])
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for l, r := 0, len(buf)-1; l < r; l, r = l+1, r-1 {
		buf[l], buf[r] = buf[r], buf[l]
	}
	return string(buf)
}

// Sequence hands out alphabetic names that are neither blocked nor already
// issued. Scan restarts from the beginning of the sequence each time unless
// Persistent is set, in which case it resumes after the last issued index.
type Sequence struct {
	Blocked    func(string) bool
	Persistent bool

	next   int
	issued map[string]struct{}
}

// Next returns the next free name.
func (s *Sequence) Next() string {
	if s.issued == nil {
		s.issued = make(map[string]struct{})
	}
	i := 0
	if s.Persistent {
		i = s.next
	}
	for ; ; i++ {
		name := AlphabeticName(i)
		if _, used := s.issued[name]; used {
			continue
		}
		if s.Blocked != nil && s.Blocked(name) {
			continue
		}
		s.issued[name] = struct{}{}
		s.next = i + 1
		return name
	}
}

// Issued reports whether name was handed out by this sequence.
func (s *Sequence) Issued(name string) bool {
	_, ok := s.issued[name]
	return ok
}

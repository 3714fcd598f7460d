package mqttpulse

import "github.com/google/uuid"

// randomToken returns the first n hex characters of a fresh UUID4, used by
// DefaultClientIDProvider. Grounded on the teacher's use of
// github.com/google/uuid for generated identifiers (pkg/message.go).
func randomToken(n int) string {
	s := uuid.New().String()
	// strip hyphens so callers get a dense token
	compact := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			compact = append(compact, s[i])
		}
	}
	if n > len(compact) {
		n = len(compact)
	}
	return string(compact[:n])
}

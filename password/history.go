package password

// IsValidAgainstHistory reports whether candidate differs from every digest
// in history. Digests that fail to parse are skipped.
func IsValidAgainstHistory(candidate string, history []string, algo string, opts Options) bool {
	h, err := New(algo, opts)
	if err != nil {
		return true
	}
	for _, digest := range history {
		ok, err := h.Verify(candidate, digest)
		if err == nil && ok {
			return false
		}
	}
	return true
}

// PushHistory appends digest and keeps only the newest limit entries.
// A limit of zero disables history and returns nil.
func PushHistory(history []string, digest string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	out := append(append([]string(nil), history...), digest)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

package channel

// Store exposes channel profile retrieval.
type Store interface {
	List() []Profile
	FindBySource(source string) (Profile, bool)
	// Resolve returns the profile for source, or the default channel's profile.
	Resolve(source string) Profile
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

// List returns the configured profiles.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindBySource looks up a profile by channel tag.
func (s *MemoryStore) FindBySource(source string) (Profile, bool) {
	for _, item := range s.items {
		if item.Source == source {
			return item, true
		}
	}
	return Profile{}, false
}

func (s *MemoryStore) Resolve(source string) Profile {
	if p, ok := s.FindBySource(source); ok {
		return p
	}
	if p, ok := s.FindBySource(DefaultSource); ok {
		return p
	}
	return Profile{
		Source:       source,
		Name:         "Asistent facturare",
		Tone:         "profesionist",
		GreetingText: "Bună! Factura este pentru o companie sau pentru o persoană fizică?",
	}
}

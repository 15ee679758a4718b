package channel

// Profile captures how the assistant presents itself on one inbound channel.
type Profile struct {
	Source       string `json:"source"`
	Name         string `json:"name"`
	Tone         string `json:"tone"`
	PromptHint   string `json:"promptHint"`
	GreetingText string `json:"greetingText"`
	MaxReplyLen  int    `json:"maxReplyLen,omitempty"` // 0 means unlimited
}

// DefaultSource is used when a caller does not tag its channel.
const DefaultSource = "web"

// Seed provides the channels the service answers on out of the box.
func Seed() []Profile {
	return []Profile{
		{
			Source:       "web",
			Name:         "Asistent facturare",
			Tone:         "profesionist, prietenos, concis",
			PromptHint:   "Poți folosi propoziții complete și poți rezuma produsele adăugate.",
			GreetingText: "Bună! Te ajut să emiți o factură. Factura este pentru o companie (persoană juridică) sau pentru o persoană fizică?",
		},
		{
			Source:       "whatsapp",
			Name:         "Asistent facturare",
			Tone:         "scurt, cald, direct",
			PromptHint:   "Mesajele se citesc pe telefon: maximum două propoziții, fără tabele.",
			GreetingText: "Salut! Facem o factură? Spune-mi dacă e pentru o companie sau pentru o persoană fizică.",
			MaxReplyLen:  600,
		},
		{
			Source:       "telegram",
			Name:         "Asistent facturare",
			Tone:         "scurt, prietenos",
			PromptHint:   "Răspunde pe scurt, fără formatare Markdown.",
			GreetingText: "Salut! Pentru cine emitem factura: o companie sau o persoană fizică?",
			MaxReplyLen:  1000,
		},
	}
}

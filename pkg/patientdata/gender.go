package patientdata

const genderTokenPrefix = "BG_GENDER_"

type genderCategory struct {
	name     string
	synonyms []string
}

// genderKeys groups the gender strings seen across source systems. Order
// matters: the first synonym found in a vocabulary wins.
var genderKeys = []genderCategory{
	{name: "male", synonyms: []string{"M", "Mand", "male", "Male", "man", "MAN", "1"}},
	{name: "female", synonyms: []string{"W", "Kvinde", "F", "female", "woman", "WOMAN", "0"}},
}

// ResolveGender returns the canonical category for a gender key.
func ResolveGender(key string) (string, bool) {
	for _, c := range genderKeys {
		for _, s := range c.synonyms {
			if s == key {
				return c.name, true
			}
		}
	}
	return "", false
}

// GenderToken finds the background token id for the category key resolves to.
func GenderToken(vocab Vocabulary, key string) (int, error) {
	category, ok := ResolveGender(key)
	if !ok {
		return 0, ConfigError("unknown gender %q, expected one of %v", key, genderKeys)
	}
	for _, c := range genderKeys {
		if c.name != category {
			continue
		}
		for _, s := range c.synonyms {
			if id, ok := vocab[genderTokenPrefix+s]; ok {
				return id, nil
			}
		}
		return 0, ConfigError("none of %s+%v found in vocabulary", genderTokenPrefix, c.synonyms)
	}
	return 0, ConfigError("gender category %q not configured", category)
}

package validate

import "regexp"

// Project names and entry keys share one character set: CJK ideographs,
// ASCII letters, digits and underscore. Anything else is rejected before it
// reaches a storage backend, where a name doubles as a file name or a hash
// field.
var nameRE = regexp.MustCompile(`^[\p{Han}_A-Za-z0-9]+$`)

// ProjectName reports whether name is a legal config_name.
func ProjectName(name string) bool {
	return nameRE.MatchString(name)
}

// EntryKey reports whether key is a legal entry key within an environment.
func EntryKey(key string) bool {
	return nameRE.MatchString(key)
}

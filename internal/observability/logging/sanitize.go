package logging

import "regexp"

var (
	// Applied before openaiKeyPattern, which would otherwise match the prefix.
	anthropicKeyPattern = regexp.MustCompile(`sk-ant-[a-zA-Z0-9-_]+`)
	openaiKeyPattern    = regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`)
	bearerPattern       = regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9._~+/=-]+`)

	// Credentials embedded in target URLs.
	userinfoPattern = regexp.MustCompile(`://([^:/@\s]+):([^@/\s]+)@`)
)

// SanitizeError returns the message of err with API keys, bearer tokens
// and URL passwords masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = anthropicKeyPattern.ReplaceAllString(msg, "sk-ant-****")
	msg = openaiKeyPattern.ReplaceAllString(msg, "sk-****")
	msg = bearerPattern.ReplaceAllString(msg, "${1}****")
	msg = userinfoPattern.ReplaceAllString(msg, "://$1:****@")
	return msg
}

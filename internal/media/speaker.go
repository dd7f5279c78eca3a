package media

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// UnknownSpeaker is reported when no honorific pattern matches a title.
const UnknownSpeaker = "अज्ञात"

// Speaker names are the last capture group of each pattern. Order matters:
// the more specific forms come first.
var speakerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(पूज्य\s+)?(मुनि|आचार्य|उपाध्याय)\s+श्री\s+([^|,\-]+?)\s+महाराज`),
	regexp.MustCompile(`(पूज्य\s+)?श्री\s+([^|,\-]+?)\s+महाराज\s+जी`),
	regexp.MustCompile(`(पूज्य\s+)?मुनि\s+श्री\s+([^|,\-]+)`),
}

// ExtractSpeaker finds the speaker's name in a video title.
func ExtractSpeaker(title string) string {
	title = norm.NFKC.String(title)
	for _, re := range speakerPatterns {
		m := re.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		if name := strings.TrimSpace(m[len(m)-1]); name != "" {
			return name
		}
	}
	return UnknownSpeaker
}

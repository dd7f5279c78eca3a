package media

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxFilenameRunes caps sanitized names so the full output name stays under common filesystem limits.
const MaxFilenameRunes = 180

var (
	forbiddenChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	whitespaceRuns = regexp.MustCompile(`[\s\p{Z}]+`)
)

// SanitizeFilename turns a free-form title into a portable file name component.
func SanitizeFilename(name string) string {
	name = norm.NFKC.String(name)
	name = forbiddenChars.ReplaceAllString(name, "_")
	name = whitespaceRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	runes := []rune(name)
	if len(runes) > MaxFilenameRunes {
		runes = runes[:MaxFilenameRunes]
	}
	return string(runes)
}

// OutputName is <video id>__<sanitized title>_<prompt name>.
func OutputName(videoID, title, promptName string) string {
	return videoID + "__" + SanitizeFilename(title) + "_" + promptName
}

package render

import (
	"net/url"
	"strings"
)

// OutputURL builds the URL under which the artifact server publishes
// outputFile. The path is escaped passes times: the http layer in front of
// the artifact server decodes the whole URL once (twice on windows desktop)
// before the handler decodes the file segment itself.
//
//	~/abc.html -> rmd_output/~%252Fabc.html/
func OutputURL(mount, outputFile string, passes int) string {
	encoded := outputFile
	for range passes {
		encoded = url.PathEscape(encoded)
	}
	return strings.Trim(mount, "/") + "/" + encoded + "/"
}

// DecodeOutputSegment decodes the file segment of an already once decoded
// request path.
func DecodeOutputSegment(segment string) (string, error) {
	return url.PathUnescape(segment)
}

package upload

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// ObjectKey builds a collision-free key for name below folder. Path
// separators and dot segments in either argument are neutralised so a key can
// never escape its bucket.
func ObjectKey(folder, name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		base = "upload"
	}
	var segs []string
	for _, seg := range strings.Split(strings.ReplaceAll(folder, `\`, "/"), "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		segs = append(segs, seg)
	}
	segs = append(segs, uuid.NewString(), base)
	return strings.Join(segs, "/")
}
